package mint

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/gonuts-mint/gonuts/cashu/nuts/nut06"
	"github.com/gonuts-mint/gonuts/mint/lightning"
)

// MintInfo is the operator-supplied portion of the mint's NUT-06
// document; SetMintInfo fills in the version and nuts settings around
// it, and RetrieveMintInfo adds the mint's pubkey.
type MintInfo struct {
	Name            string
	Description     string
	LongDescription string
	Contact         []nut06.ContactInfo
	Motd            string
}

// MintMeltLimit bounds a single mint or melt operation.
type MintMeltLimit struct {
	MinAmount uint64
	MaxAmount uint64
}

// MintLimits caps how much a mint will issue or pay out, and the total
// balance it is willing to custody.
type MintLimits struct {
	MintingSettings MintMeltLimit
	MeltingSettings MintMeltLimit
	MaxBalance      uint64
}

// Config is everything LoadMint needs to bring up a Mint instance.
type Config struct {
	MintPath          string
	DBMigrationPath   string
	DerivationPathIdx uint32
	InputFeePpk       uint
	LightningClient   lightning.Client
	MintInfo          MintInfo
	Limits            MintLimits
	Port              string

	// Mnemonic, if set, seeds the mint's master key deterministically via
	// BIP-39 instead of a freshly generated random seed. Leave empty to
	// let LoadMint generate and persist a random seed on first run.
	Mnemonic string
}

// GetConfig reads mint configuration from the environment, loading a
// .env file first if one is present in the working directory.
func GetConfig() (Config, error) {
	_ = godotenv.Load()

	derivationIdx, err := parseUintEnv("MINT_DERIVATION_PATH_IDX", 0)
	if err != nil {
		return Config{}, err
	}
	inputFeePpk, err := parseUintEnv("MINT_INPUT_FEE_PPK", 0)
	if err != nil {
		return Config{}, err
	}
	maxMintAmount, err := parseUintEnv("MINT_MAX_MINT_AMOUNT", 0)
	if err != nil {
		return Config{}, err
	}
	maxMeltAmount, err := parseUintEnv("MINT_MAX_MELT_AMOUNT", 0)
	if err != nil {
		return Config{}, err
	}
	maxBalance, err := parseUintEnv("MINT_MAX_BALANCE", 0)
	if err != nil {
		return Config{}, err
	}

	var contact []nut06.ContactInfo
	if raw := os.Getenv("MINT_CONTACT_INFO"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &contact); err != nil {
			return Config{}, fmt.Errorf("error parsing MINT_CONTACT_INFO: %v", err)
		}
	}

	port := os.Getenv("MINT_PORT")
	if port == "" {
		port = "3338"
	}

	lightningClient, err := lightningClientFromEnv()
	if err != nil {
		return Config{}, err
	}

	return Config{
		MintPath:          os.Getenv("MINT_PATH"),
		DBMigrationPath:   os.Getenv("MINT_DB_MIGRATION_PATH"),
		DerivationPathIdx: uint32(derivationIdx),
		InputFeePpk:       uint(inputFeePpk),
		LightningClient:   lightningClient,
		MintInfo: MintInfo{
			Name:            os.Getenv("MINT_NAME"),
			Description:     os.Getenv("MINT_DESCRIPTION"),
			LongDescription: os.Getenv("MINT_DESCRIPTION_LONG"),
			Contact:         contact,
			Motd:            os.Getenv("MINT_MOTD"),
		},
		Limits: MintLimits{
			MintingSettings: MintMeltLimit{MaxAmount: maxMintAmount},
			MeltingSettings: MintMeltLimit{MaxAmount: maxMeltAmount},
			MaxBalance:      maxBalance,
		},
		Port:     port,
		Mnemonic: os.Getenv("MINT_SEED_MNEMONIC"),
	}, nil
}

func lightningClientFromEnv() (lightning.Client, error) {
	switch os.Getenv("MINT_LIGHTNING_BACKEND") {
	case "CLN":
		return lightning.SetupCLNClient(lightning.CLNConfig{
			RestURL: os.Getenv("CLN_REST_URL"),
			Rune:    os.Getenv("CLN_RUNE"),
		}, nil)
	case "LND":
		return lightning.SetupLndClient(lightning.LNDConfig{
			Host:         os.Getenv("LND_HOST"),
			TLSCertPath:  os.Getenv("LND_TLS_CERT_PATH"),
			MacaroonPath: os.Getenv("LND_MACAROON_PATH"),
		})
	case "Strike":
		return lightning.SetupStrikeRestClient(lightning.StrikeRestConfig{
			BaseURL: os.Getenv("STRIKE_BASE_URL"),
			ApiKey:  os.Getenv("STRIKE_API_KEY"),
		})
	default:
		return lightning.NewMockClient(), nil
	}
}

func parseUintEnv(key string, fallback uint64) (uint64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %v", key, err)
	}
	return val, nil
}
