package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// endpointResult is the value an endpoint function builds and hands back to
// endpoint for writing; it separates "what happened" from "how to write it
// to the wire" so handlers never touch http.ResponseWriter directly.
type endpointResult struct {
	status      int
	internalMsg string
	isErr       bool
	resp        interface{}
	hdrs        [][2]string
}

func jsonOK(resp interface{}, internalMsg string, v ...interface{}) endpointResult {
	return endpointResult{status: http.StatusOK, internalMsg: fmt.Sprintf(internalMsg, v...), resp: resp}
}

func jsonCreated(resp interface{}, internalMsg string, v ...interface{}) endpointResult {
	return endpointResult{status: http.StatusCreated, internalMsg: fmt.Sprintf(internalMsg, v...), resp: resp}
}

func jsonNoContent(internalMsg string, v ...interface{}) endpointResult {
	return endpointResult{status: http.StatusNoContent, internalMsg: fmt.Sprintf(internalMsg, v...)}
}

func jsonErr(status int, userMsg, internalMsg string, v ...interface{}) endpointResult {
	return endpointResult{
		status:      status,
		internalMsg: fmt.Sprintf(internalMsg, v...),
		isErr:       true,
		resp:        errorResponse{Error: userMsg, Status: status},
	}
}

func jsonBadRequest(userMsg string, internalMsg string, v ...interface{}) endpointResult {
	return jsonErr(http.StatusBadRequest, userMsg, internalMsg, v...)
}

func jsonUnauthorized(userMsg string, internalMsg string, v ...interface{}) endpointResult {
	if userMsg == "" {
		userMsg = "you are not authorized to do that"
	}
	return jsonErr(http.StatusUnauthorized, userMsg, internalMsg, v...).withHeader("WWW-Authenticate", `Bearer realm="quosi-trace-server"`)
}

func jsonForbidden(internalMsg string, v ...interface{}) endpointResult {
	return jsonErr(http.StatusForbidden, "you don't have permission to do that", internalMsg, v...)
}

func jsonNotFound(internalMsg string, v ...interface{}) endpointResult {
	return jsonErr(http.StatusNotFound, "the requested resource was not found", internalMsg, v...)
}

func jsonConflict(userMsg string, internalMsg string, v ...interface{}) endpointResult {
	return jsonErr(http.StatusConflict, userMsg, internalMsg, v...)
}

func jsonInternalServerError(internalMsg string, v ...interface{}) endpointResult {
	return jsonErr(http.StatusInternalServerError, "an internal server error occurred", internalMsg, v...)
}

func (r endpointResult) withHeader(name, val string) endpointResult {
	r.hdrs = append(r.hdrs, [2]string{name, val})
	return r
}

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (r endpointResult) writeResponse(w http.ResponseWriter, req *http.Request) {
	if r.status == 0 {
		logHTTP("ERROR", req, http.StatusInternalServerError, "endpoint result was never populated")
		http.Error(w, "an internal server error occurred", http.StatusInternalServerError)
		return
	}

	var body []byte
	if r.status != http.StatusNoContent {
		var err error
		body, err = json.Marshal(r.resp)
		if err != nil {
			jsonInternalServerError("could not marshal response: %s", err).writeResponse(w, req)
			return
		}
	}

	if r.isErr {
		logHTTP("ERROR", req, r.status, r.internalMsg)
	} else {
		logHTTP("INFO", req, r.status, r.internalMsg)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	for _, h := range r.hdrs {
		w.Header().Set(h[0], h[1])
	}
	w.WriteHeader(r.status)
	if r.status != http.StatusNoContent {
		w.Write(body)
	}
}

func logHTTP(level string, req *http.Request, status int, msg string) {
	remote := strings.SplitN(req.RemoteAddr, ":", 2)[0]
	log.Printf("%-5s %s %s %s: HTTP-%d %s", level, remote, req.Method, req.URL.Path, status, msg)
}
