package mint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut01"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut02"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut03"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut04"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut05"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut07"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut09"
	"github.com/gonuts-mint/gonuts/crypto"
	"github.com/gonuts-mint/gonuts/mint/storage"
	"github.com/gorilla/mux"
)

// MintServer is the HTTP surface over a Mint, implementing the NUT
// REST endpoints a Cashu wallet speaks to.
type MintServer struct {
	mint       *Mint
	logger     *slog.Logger
	httpServer *http.Server
}

func SetupMintServer(config Config) (*MintServer, error) {
	mint, err := LoadMint(config)
	if err != nil {
		return nil, err
	}

	logger, err := newMintLogger()
	if err != nil {
		return nil, err
	}

	server := &MintServer{mint: mint, logger: logger}
	server.setupHttpServer(config.Port)
	return server, nil
}

func StartMintServer(server *MintServer) {
	server.logger.Info("mint server listening on: " + server.httpServer.Addr)
	log.Fatal(server.httpServer.ListenAndServe())
}

// newMintLogger builds a JSON slog.Logger that writes to both stdout and
// mint.log under the mint's data directory, appending to that file
// across restarts.
func newMintLogger() (*slog.Logger, error) {
	trimSourcePaths := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
			source.Function = filepath.Base(source.Function)
		}
		return a
	}

	logPath := filepath.Join(mintPath(), "mint.log")
	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %v", err)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(os.Stdout, logFile), &slog.HandlerOptions{
		AddSource:   true,
		ReplaceAttr: trimSourcePaths,
	})
	return slog.New(handler), nil
}

func (ms *MintServer) LogInfo(format string, v ...any) {
	ms.logger.Info(fmt.Sprintf(format, v...))
}

func (ms *MintServer) setupHttpServer(port string) {
	router := mux.NewRouter()

	router.HandleFunc("/v1/keys", ms.getActiveKeysets).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/v1/keysets", ms.getKeysetsList).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/v1/keys/{id}", ms.getKeysetById).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/v1/mint/quote/{method}", ms.mintRequest).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	router.HandleFunc("/v1/mint/quote/{method}/{quote_id}", ms.mintQuoteState).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	router.HandleFunc("/v1/mint/{method}", ms.mintTokensRequest).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/v1/swap", ms.swapRequest).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/v1/melt/quote/{method}", ms.meltQuoteRequest).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/v1/melt/quote/{method}/{quote_id}", ms.meltQuoteState).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/v1/melt/{method}", ms.meltTokens).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/v1/info", ms.mintInfo).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/v1/checkstate", ms.checkState).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/v1/restore", ms.restore).Methods(http.MethodPost, http.MethodOptions)

	router.Use(corsAndContentTypeHeaders)

	if len(port) == 0 {
		port = "3338"
	}
	ms.httpServer = &http.Server{
		Addr:    "127.0.0.1:" + port,
		Handler: router,
	}
}

func corsAndContentTypeHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Header().Set("Access-Control-Allow-Origin", "*")
		rw.Header().Set("Access-Control-Allow-Credentials", "true")
		rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		rw.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, origin")

		if req.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(rw, req)
	})
}

func (ms *MintServer) writeResponse(rw http.ResponseWriter, req *http.Request, body []byte, logmsg string) {
	ms.logger.Info(logmsg, slog.Group("request",
		slog.String("method", req.Method), slog.String("url", req.URL.String()), slog.Int("code", http.StatusOK)))
	rw.Write(body)
}

// writeErr writes errResponse as the JSON body and logs errLogMsg[0] if
// given, otherwise errResponse's own message.
func (ms *MintServer) writeErr(rw http.ResponseWriter, req *http.Request, errResponse error, errLogMsg ...string) {
	const code = http.StatusBadRequest

	logMsg := errResponse.Error()
	if len(errLogMsg) > 0 {
		logMsg = errLogMsg[0]
	}

	ms.logger.Error(logMsg, slog.Group("request",
		slog.String("method", req.Method), slog.String("url", req.URL.String()), slog.Int("code", code)))

	rw.WriteHeader(code)
	body, _ := json.Marshal(errResponse)
	rw.Write(body)
}

// writeBackendErr writes a generic client-facing error while logging the
// real internal failure, for errors originating from the Lightning
// backend or the database that shouldn't leak implementation detail to
// callers. Returns true if err was handled this way.
func (ms *MintServer) writeBackendErr(rw http.ResponseWriter, req *http.Request, err error, codes ...int) bool {
	var cashuErr *cashu.Error
	if !errors.As(err, &cashuErr) {
		return false
	}
	if !slices.Contains(codes, cashuErr.Code) {
		return false
	}
	ms.writeErr(rw, req, cashu.StandardErr, cashuErr.Error())
	return true
}

func (ms *MintServer) getActiveKeysets(rw http.ResponseWriter, req *http.Request) {
	res := buildKeysResponse(ms.mint.ActiveKeysets())
	jsonRes, err := json.Marshal(res)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "returning active keysets")
}

func (ms *MintServer) getKeysetsList(rw http.ResponseWriter, req *http.Request) {
	res := ms.buildAllKeysetsResponse()
	jsonRes, err := json.Marshal(res)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "returning all keysets")
}

func (ms *MintServer) getKeysetById(rw http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	keyset, ok := ms.mint.Keysets()[id]
	if !ok {
		ms.writeErr(rw, req, cashu.KeysetNotExistErr)
		return
	}

	res := buildKeysResponse(map[string]crypto.MintKeyset{keyset.Id: keyset})
	jsonRes, err := json.Marshal(res)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "returned keyset with id: "+id)
}

func (ms *MintServer) mintRequest(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]

	var body nut04.PostMintQuoteBolt11Request
	if err := decodeJsonReqBody(req, &body); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	quote, err := ms.mint.RequestMintQuote(method, body.Amount, body.Unit)
	if err != nil {
		if ms.writeBackendErr(rw, req, err, cashu.InvoiceErrCode, cashu.DBErrorCode) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	res := nut04.PostMintQuoteBolt11Response{
		Quote:   quote.Id,
		Request: quote.PaymentRequest,
		State:   quote.State,
		Paid:    false,
		Expiry:  quote.Expiry,
	}
	jsonRes, err := json.Marshal(&res)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, fmt.Sprintf("mint request for %v %v", body.Amount, body.Unit))
}

func (ms *MintServer) mintQuoteState(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	quote, err := ms.mint.GetMintQuoteState(vars["method"], vars["quote_id"])
	if err != nil {
		if ms.writeBackendErr(rw, req, err, cashu.InvoiceErrCode, cashu.DBErrorCode) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	res := nut04.PostMintQuoteBolt11Response{
		Quote:   quote.Id,
		Request: quote.PaymentRequest,
		State:   quote.State,
		Paid:    quote.State == nut04.Paid || quote.State == nut04.Issued, // DEPRECATED: remove after wallets have upgraded
		Expiry:  quote.Expiry,
	}
	jsonRes, err := json.Marshal(&res)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "")
}

func (ms *MintServer) mintTokensRequest(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]

	var body nut04.PostMintBolt11Request
	if err := decodeJsonReqBody(req, &body); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	signatures, err := ms.mint.MintTokens(method, body.Quote, body.Outputs)
	if err != nil {
		if ms.writeBackendErr(rw, req, err, cashu.InvoiceErrCode, cashu.DBErrorCode) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	jsonRes, err := json.Marshal(nut04.PostMintBolt11Response{Signatures: signatures})
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "returned signatures on mint tokens request")
}

func (ms *MintServer) swapRequest(rw http.ResponseWriter, req *http.Request) {
	var body nut03.PostSwapRequest
	if err := decodeJsonReqBody(req, &body); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	signatures, err := ms.mint.Swap(body.Inputs, body.Outputs)
	if err != nil {
		if ms.writeBackendErr(rw, req, err, cashu.DBErrorCode) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	jsonRes, err := json.Marshal(nut03.PostSwapResponse{Signatures: signatures})
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "returned signatures on swap request")
}

func (ms *MintServer) meltQuoteRequest(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]

	var body nut05.PostMeltQuoteBolt11Request
	if err := decodeJsonReqBody(req, &body); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	quote, err := ms.mint.RequestMeltQuote(method, body.Request, body.Unit)
	if err != nil {
		if ms.writeBackendErr(rw, req, err, cashu.DBErrorCode) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	res := &nut05.PostMeltQuoteBolt11Response{
		Quote:      quote.Id,
		Amount:     quote.Amount,
		FeeReserve: quote.FeeReserve,
		State:      quote.State,
		Paid:       false,
		Expiry:     quote.Expiry,
	}
	jsonRes, err := json.Marshal(res)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "melt quote request")
}

func (ms *MintServer) meltQuoteState(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	quote, err := ms.mint.GetMeltQuoteState(req.Context(), vars["method"], vars["quote_id"])
	if err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	res := meltQuoteResponse(quote)
	jsonRes, err := json.Marshal(res)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "")
}

func (ms *MintServer) meltTokens(rw http.ResponseWriter, req *http.Request) {
	method := mux.Vars(req)["method"]

	var body nut05.PostMeltBolt11Request
	if err := decodeJsonReqBody(req, &body); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	quote, err := ms.mint.MeltTokens(req.Context(), method, body.Quote, body.Inputs)
	if err != nil {
		var cashuErr *cashu.Error
		if errors.As(err, &cashuErr) && cashuErr.Code == cashu.InvoiceErrCode {
			ms.writeErr(rw, req, cashu.BuildCashuError("unable to send payment", cashu.InvoiceErrCode), cashuErr.Error())
			return
		}
		if ms.writeBackendErr(rw, req, err, cashu.DBErrorCode) {
			return
		}
		ms.writeErr(rw, req, err)
		return
	}

	jsonRes, err := json.Marshal(meltQuoteResponse(quote))
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "")
}

func meltQuoteResponse(quote storage.MeltQuote) *nut05.PostMeltQuoteBolt11Response {
	return &nut05.PostMeltQuoteBolt11Response{
		Quote:      quote.Id,
		Amount:     quote.Amount,
		FeeReserve: quote.FeeReserve,
		State:      quote.State,
		Paid:       quote.State == nut05.Paid,
		Expiry:     quote.Expiry,
		Preimage:   quote.Preimage,
	}
}

func (ms *MintServer) mintInfo(rw http.ResponseWriter, req *http.Request) {
	info, err := ms.mint.RetrieveMintInfo()
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}

	jsonRes, err := json.Marshal(info)
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "returning mint info")
}

func (ms *MintServer) checkState(rw http.ResponseWriter, req *http.Request) {
	var body nut07.PostCheckStateRequest
	if err := decodeJsonReqBody(req, &body); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	states, err := ms.mint.ProofsStateCheck(body.Ys)
	if err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	jsonRes, err := json.Marshal(nut07.PostCheckStateResponse{States: states})
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "returned proof states")
}

func (ms *MintServer) restore(rw http.ResponseWriter, req *http.Request) {
	var body nut09.PostRestoreRequest
	if err := decodeJsonReqBody(req, &body); err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	outputs, signatures, err := ms.mint.RestoreSignatures(body.Outputs)
	if err != nil {
		ms.writeErr(rw, req, err)
		return
	}

	jsonRes, err := json.Marshal(nut09.PostRestoreResponse{Outputs: outputs, Signatures: signatures})
	if err != nil {
		ms.writeErr(rw, req, cashu.StandardErr)
		return
	}
	ms.writeResponse(rw, req, jsonRes, "returned restored signatures")
}

func buildKeysResponse(keysets map[string]crypto.MintKeyset) nut01.GetKeysResponse {
	var res nut01.GetKeysResponse
	for _, keyset := range keysets {
		res.Keysets = append(res.Keysets, nut01.Keyset{
			Id:   keyset.Id,
			Unit: keyset.Unit,
			Keys: keyset.DerivePublic(),
		})
	}
	return res
}

func (ms *MintServer) buildAllKeysetsResponse() nut02.GetKeysetsResponse {
	var res nut02.GetKeysetsResponse
	for _, keyset := range ms.mint.Keysets() {
		res.Keysets = append(res.Keysets, nut02.Keyset{
			Id:          keyset.Id,
			Unit:        keyset.Unit,
			Active:      keyset.Active,
			InputFeePpk: keyset.InputFeePpk,
		})
	}
	return res
}

// decodeJsonReqBody decodes req's JSON body into dst, rejecting unknown
// fields and translating decode failures into cashu.Error responses.
func decodeJsonReqBody(req *http.Request, dst any) error {
	if ct := req.Header.Get("Content-Type"); ct != "" {
		mediaType := strings.ToLower(strings.Split(ct, ";")[0])
		if mediaType != "application/json" {
			return cashu.BuildCashuError("Content-Type header is not application/json", cashu.StandardErrCode)
		}
	}

	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return translateDecodeErr(err)
	}
	return nil
}

func translateDecodeErr(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &syntaxErr):
		return cashu.BuildCashuError(fmt.Sprintf("bad json at %d", syntaxErr.Offset), cashu.StandardErrCode)
	case errors.As(err, &typeErr):
		return cashu.BuildCashuError(fmt.Sprintf("invalid %v for field %q", typeErr.Value, typeErr.Field), cashu.StandardErrCode)
	case errors.Is(err, io.EOF):
		return cashu.EmptyBodyErr
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return cashu.BuildCashuError(fmt.Sprintf("Request body contains unknown field %s", field), cashu.StandardErrCode)
	default:
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}
}
