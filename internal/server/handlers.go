package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dekarrin/quosi"
	"github.com/dekarrin/quosi/internal/binfmt"
	"github.com/dekarrin/quosi/internal/server/store"
	"github.com/dekarrin/quosi/internal/vm"
)

func compileSource(src string) (*binfmt.CompiledFile, error) {
	return quosi.CompileFromSource(src, nil)
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// createSessionRequest supplies exactly one of Source (Quosi source text, to
// be compiled) or Program (a base64-encoded .bsi file, to be loaded as-is).
type createSessionRequest struct {
	Source  string `json:"source,omitempty"`
	Program string `json:"program,omitempty"`
}

type propositionInfo struct {
	Text  string `json:"text"`
	Index uint32 `json:"index"`
}

// sessionResponse describes a session's last observed up-call: whichever
// fields are relevant to UpCall are populated, the rest left zero.
type sessionResponse struct {
	ID    string `json:"id"`
	UpCall string `json:"up_call"`

	SpeakerID    *uint32           `json:"speaker_id,omitempty"`
	Text         string            `json:"text,omitempty"`
	Propositions []propositionInfo `json:"propositions,omitempty"`
}

type resumeRequest struct {
	// Choice is the edge index of the chosen proposition, required only
	// when resuming a session paused on a Pick up-call.
	Choice *uint32 `json:"choice,omitempty"`
}

func (s *Server) epRegister(req *http.Request) endpointResult {
	var body registerRequest
	if err := parseJSON(req, &body); err != nil {
		return jsonBadRequest(err.Error(), err.Error())
	}
	if body.Username == "" || body.Password == "" {
		return jsonBadRequest("username and password are required", "missing username or password")
	}

	u, err := s.Register(req.Context(), body.Username, body.Password)
	if err != nil {
		if err == store.ErrConflict {
			return jsonConflict("a user with that username already exists", "username %q taken", body.Username)
		}
		return jsonInternalServerError("register: %s", err.Error())
	}

	return jsonCreated(userResponse{ID: u.ID.String(), Username: u.Username}, "user %q registered", u.Username)
}

func (s *Server) epLogin(req *http.Request) endpointResult {
	var body loginRequest
	if err := parseJSON(req, &body); err != nil {
		return jsonBadRequest(err.Error(), err.Error())
	}

	tok, err := s.Login(req.Context(), body.Username, body.Password)
	if err != nil {
		if err == ErrBadCredentials {
			return jsonUnauthorized(err.Error(), "login failed for %q", body.Username)
		}
		return jsonInternalServerError("login: %s", err.Error())
	}

	u, err := s.store.Users().GetByUsername(req.Context(), body.Username)
	if err != nil {
		return jsonInternalServerError("login: %s", err.Error())
	}

	return jsonOK(authResponse{Token: tok, UserID: u.ID.String()}, "user %q logged in", body.Username)
}

func (s *Server) epLogout(req *http.Request) endpointResult {
	u := authedUser(req)
	if err := s.Logout(req.Context(), u); err != nil {
		return jsonInternalServerError("logout: %s", err.Error())
	}
	return jsonNoContent("user %q logged out", u.Username)
}

func (s *Server) epCreateSession(req *http.Request) endpointResult {
	u := authedUser(req)

	var body createSessionRequest
	if err := parseJSON(req, &body); err != nil {
		return jsonBadRequest(err.Error(), err.Error())
	}

	var program []byte
	switch {
	case body.Source != "":
		cf, err := compileSource(body.Source)
		if err != nil {
			return jsonBadRequest("could not compile source: "+err.Error(), err.Error())
		}
		program = cf.Marshal()
	case body.Program != "":
		raw, err := base64.StdEncoding.DecodeString(body.Program)
		if err != nil {
			return jsonBadRequest("program is not valid base64", err.Error())
		}
		if _, err := binfmt.FromRaw(raw); err != nil {
			return jsonBadRequest("program is not a valid compiled file", err.Error())
		}
		program = raw
	default:
		return jsonBadRequest("exactly one of source or program is required", "empty create-session request")
	}

	cf, err := binfmt.FromRaw(program)
	if err != nil {
		return jsonInternalServerError("reloading compiled program: %s", err.Error())
	}

	m := vm.New(cf.Payload)
	vars := make(sessionVars)
	up := m.Exec(vars.context)

	sess, err := s.store.Sessions().Create(req.Context(), store.Session{
		UserID:     u.ID,
		Program:    program,
		VMState:    m.Export(),
		Vars:       encodeVars(vars),
		LastUpCall: int(up),
	})
	if err != nil {
		return jsonInternalServerError("creating session: %s", err.Error())
	}

	return jsonCreated(renderUpCall(sess.ID, up, m), "session %s created", sess.ID)
}

func (s *Server) epGetSession(req *http.Request) endpointResult {
	u := authedUser(req)

	sess, res := s.loadSession(req, u)
	if res != nil {
		return *res
	}

	_, m, err := rehydrate(sess)
	if err != nil {
		return jsonInternalServerError("rehydrating session: %s", err.Error())
	}

	return jsonOK(renderUpCall(sess.ID, vm.UpCall(sess.LastUpCall), m), "session %s fetched", sess.ID)
}

func (s *Server) epResumeSession(req *http.Request) endpointResult {
	u := authedUser(req)

	sess, res := s.loadSession(req, u)
	if res != nil {
		return *res
	}

	var body resumeRequest
	if req.ContentLength != 0 {
		if err := parseJSON(req, &body); err != nil {
			return jsonBadRequest(err.Error(), err.Error())
		}
	}

	if vm.UpCall(sess.LastUpCall) == vm.PickCall {
		if body.Choice == nil {
			return jsonBadRequest("choice is required to resume a session paused on a choice", "missing choice")
		}
	}
	if vm.UpCall(sess.LastUpCall) == vm.ExitCall || vm.UpCall(sess.LastUpCall) == vm.AbortCall {
		return jsonConflict("session has already terminated", "session %s resumed after terminal up-call", sess.ID)
	}

	_, m, err := rehydrate(sess)
	if err != nil {
		return jsonInternalServerError("rehydrating session: %s", err.Error())
	}

	vars, err := decodeVars(sess.Vars)
	if err != nil {
		return jsonInternalServerError("decoding session variables: %s", err.Error())
	}

	if body.Choice != nil {
		m.Push(uint64(*body.Choice))
	}
	up := m.Exec(vars.context)

	sess.VMState = m.Export()
	sess.Vars = encodeVars(vars)
	sess.LastUpCall = int(up)

	sess, err = s.store.Sessions().Update(req.Context(), sess)
	if err != nil {
		return jsonInternalServerError("saving session: %s", err.Error())
	}

	return jsonOK(renderUpCall(sess.ID, up, m), "session %s resumed", sess.ID)
}

func (s *Server) epDeleteSession(req *http.Request) endpointResult {
	u := authedUser(req)

	sess, res := s.loadSession(req, u)
	if res != nil {
		return *res
	}

	if err := s.store.Sessions().Delete(req.Context(), sess.ID); err != nil {
		return jsonInternalServerError("deleting session: %s", err.Error())
	}
	return jsonNoContent("session %s deleted", sess.ID)
}

// loadSession fetches and authorizes the session named by the {id} URL
// param. On failure it returns a populated endpointResult to return
// directly; on success that pointer is nil.
func (s *Server) loadSession(req *http.Request, u store.User) (store.Session, *endpointResult) {
	idStr := chi.URLParam(req, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		r := jsonBadRequest("id is not a valid session id", "bad session id %q", idStr)
		return store.Session{}, &r
	}

	sess, err := s.store.Sessions().GetByID(req.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			r := jsonNotFound("session %s not found", idStr)
			return store.Session{}, &r
		}
		r := jsonInternalServerError("loading session: %s", err.Error())
		return store.Session{}, &r
	}

	if sess.UserID != u.ID {
		r := jsonForbidden("user %q does not own session %s", u.Username, idStr)
		return store.Session{}, &r
	}

	return sess, nil
}

func rehydrate(sess store.Session) (*binfmt.CompiledFile, *vm.VM, error) {
	cf, err := binfmt.FromRaw(sess.Program)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding stored program: %w", err)
	}
	m := vm.New(cf.Payload)
	if err := m.Import(sess.VMState); err != nil {
		return nil, nil, fmt.Errorf("restoring VM state: %w", err)
	}
	return cf, m, nil
}

func renderUpCall(id uuid.UUID, up vm.UpCall, m *vm.VM) sessionResponse {
	resp := sessionResponse{ID: id.String(), UpCall: up.String()}

	switch up {
	case vm.LineCall:
		speaker := m.ID()
		resp.SpeakerID = &speaker
		resp.Text = m.Line()
	case vm.EventCall:
		resp.Text = m.Line()
	case vm.PickCall:
		n := m.Nq()
		resp.Propositions = make([]propositionInfo, n)
		for i := uint32(0); i < n; i++ {
			text, edgeIndex := m.DeqText()
			resp.Propositions[i] = propositionInfo{Text: text, Index: edgeIndex}
		}
	}

	return resp
}

// v must be a pointer. Errors wrap so callers can format them directly into
// a bad-request message.
func parseJSON(req *http.Request, v interface{}) error {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("could not read request body: %w", err)
	}
	defer func() {
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewBuffer(data))
	}()

	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("request body is empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed JSON in request body: %w", err)
	}
	return nil
}
