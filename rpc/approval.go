package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"proofpay/native/approval"
	"proofpay/observability/metrics"
	"proofpay/zk"
)

type proofPayload struct {
	A []string   `json:"a"`
	B [][]string `json:"b"`
	C []string   `json:"c"`
}

type admitParams struct {
	Sender        string       `json:"sender"`
	Recipient     string       `json:"recipient"`
	MinAmount     uint64       `json:"minAmount"`
	MaxAmount     uint64       `json:"maxAmount"`
	Expiry        int64        `json:"expiry"`
	ProofID       string       `json:"proofId"`
	Proof         proofPayload `json:"proof"`
	PublicSignals []string     `json:"publicSignals"`
}

type admitResult struct {
	ProofID string `json:"proofId"`
}

type consumeParams struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

type consumeResult struct {
	ProofID string `json:"proofId"`
	Amount  uint64 `json:"amount"`
}

type countParams struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

type countResult struct {
	Count int `json:"count"`
}

type proofIDParams struct {
	ProofID string `json:"proofId"`
}

type isConsumedResult struct {
	Consumed bool `json:"consumed"`
}

type issuerResult struct {
	Issuer string `json:"issuer"`
	Token  string `json:"token"`
}

type historyEntry struct {
	Sequence  uint64 `json:"sequence"`
	Action    string `json:"action"`
	Issuer    string `json:"issuer"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	ProofID   string `json:"proofId"`
	MinAmount string `json:"minAmount,omitempty"`
	MaxAmount string `json:"maxAmount,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Expiry    int64  `json:"expiry,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type auditExportParams struct {
	StartTs int64 `json:"startTs"`
	EndTs   int64 `json:"endTs"`
}

type auditExportResult struct {
	CSVBase64 string `json:"csvBase64"`
	Count     int    `json:"count"`
}

func decodeAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 20 {
		return addr, fmt.Errorf("invalid address %q", raw)
	}
	copy(addr[:], decoded)
	return addr, nil
}

func decodeProofID(raw string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 32 {
		return id, fmt.Errorf("invalid proof identifier %q", raw)
	}
	copy(id[:], decoded)
	return id, nil
}

func parseBigInts(raw []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(raw))
	for i, item := range raw {
		value, ok := new(big.Int).SetString(strings.TrimSpace(item), 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", item)
		}
		out[i] = value
	}
	return out, nil
}

func parseProofPayload(payload proofPayload) (*zk.Proof, error) {
	a, err := parseBigInts(payload.A)
	if err != nil {
		return nil, err
	}
	c, err := parseBigInts(payload.C)
	if err != nil {
		return nil, err
	}
	b := make([][]*big.Int, len(payload.B))
	for i, row := range payload.B {
		b[i], err = parseBigInts(row)
		if err != nil {
			return nil, err
		}
	}
	return zk.ParseProof(a, b, c)
}

func singleParam(req *RPCRequest, target interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("parameter object required")
	}
	return json.Unmarshal(req.Params[0], target)
}

func (s *Server) handleApprovalAdmit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params admitParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid admission parameters", err.Error())
		return
	}
	sender, err := decodeAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipient, err := decodeAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	proof, err := parseProofPayload(params.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid proof", err.Error())
		return
	}
	signals, err := parseBigInts(params.PublicSignals)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid public signals", err.Error())
		return
	}
	proofID, err := decodeProofID(params.ProofID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	apv := &approval.Approval{
		Sender:    sender,
		Recipient: recipient,
		MinAmount: params.MinAmount,
		MaxAmount: params.MaxAmount,
		Expiry:    params.Expiry,
		ProofID:   proofID,
	}
	id, err := s.registry.Admit(s.registry.Issuer(), apv, proof, signals, s.nowFn())
	if err != nil {
		observeRejection(err)
		s.logger.Warn("admission rejected", "error", err)
		writeError(w, http.StatusOK, req.ID, admissionErrorCode(err), err.Error(), nil)
		return
	}
	metrics.Approval().ObserveAdmission()
	writeResult(w, req.ID, admitResult{ProofID: "0x" + hex.EncodeToString(id[:])})
}

func (s *Server) handleApprovalConsume(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params consumeParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid consume parameters", err.Error())
		return
	}
	sender, err := decodeAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipient, err := decodeAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	id, err := s.engine.Settle(sender, recipient, params.Amount)
	if err != nil {
		if errors.Is(err, approval.ErrNoApprovalFound) {
			metrics.Approval().ObserveConsumeMiss()
			writeError(w, http.StatusOK, req.ID, codeNotFound, err.Error(), nil)
			return
		}
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	metrics.Approval().ObserveConsumption()
	writeResult(w, req.ID, consumeResult{ProofID: "0x" + hex.EncodeToString(id[:]), Amount: params.Amount})
}

func (s *Server) handleApprovalCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params countParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid count parameters", err.Error())
		return
	}
	sender, err := decodeAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipient, err := decodeAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, countResult{Count: s.registry.LiveCount(sender, recipient)})
}

func (s *Server) handleApprovalIsConsumed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params proofIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	id, err := decodeProofID(params.ProofID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, isConsumedResult{Consumed: s.registry.IsProofUsed(id)})
}

func (s *Server) handleApprovalIssuer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	issuer := s.registry.Issuer()
	tokenID := s.registry.Token()
	writeResult(w, req.ID, issuerResult{
		Issuer: "0x" + hex.EncodeToString(issuer[:]),
		Token:  "0x" + hex.EncodeToString(tokenID[:]),
	})
}

func (s *Server) handleApprovalHistory(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.trail == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "audit trail unavailable", nil)
		return
	}
	var params proofIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	id, err := decodeProofID(params.ProofID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	entries, err := s.trail.ByProofID(hex.EncodeToString(id[:]))
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load history", err.Error())
		return
	}
	result := make([]historyEntry, len(entries))
	for i, entry := range entries {
		result[i] = historyEntry{
			Sequence:  entry.Sequence,
			Action:    entry.Action,
			Issuer:    entry.Issuer,
			Sender:    entry.Sender,
			Recipient: entry.Recipient,
			ProofID:   entry.ProofID,
			MinAmount: entry.MinAmount,
			MaxAmount: entry.MaxAmount,
			Amount:    entry.Amount,
			Expiry:    entry.Expiry,
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleAuditExport(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.trail == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "audit trail unavailable", nil)
		return
	}
	params := auditExportParams{}
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "too many parameters", nil)
		return
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid export parameters", err.Error())
			return
		}
	}
	encoded, count, err := s.trail.ExportCSV(params.StartTs, params.EndTs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to export audit trail", err.Error())
		return
	}
	writeResult(w, req.ID, auditExportResult{CSVBase64: encoded, Count: count})
}
