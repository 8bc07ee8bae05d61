package transport

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pion/webrtc/v4"
)

// MaxBundleSize ограничивает распакованный размер приглашения или ответа
const MaxBundleSize = 256 * 1024

var (
	errEmptyBundle  = errors.New("empty bundle")
	errBundleTooBig = fmt.Errorf("bundle exceeds %d bytes", MaxBundleSize)
	errMissingSDP   = errors.New("bundle has no session description")
)

// SdpPayload - описание сессии с идентификатором соединения
type SdpPayload struct {
	SDP webrtc.SessionDescription `json:"sdp"`
	ID  string                    `json:"id"`
	TS  int64                     `json:"ts"`
}

// IceCandidate - локальный кандидат, переданный вместе с описанием
type IceCandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index"`
	ConnectionID  string  `json:"connection_id"`
}

// ConnectionBundle - то, что пользователь передает собеседнику вне канала
type ConnectionBundle struct {
	SdpPayload    SdpPayload     `json:"sdp_payload"`
	IceCandidates []IceCandidate `json:"ice_candidates"`
}

// EncodeBundle: JSON -> gzip -> base64
func EncodeBundle(b ConnectionBundle) (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal bundle: %w", err)
	}

	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return "", fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := gz.Write(raw); err != nil {
		return "", fmt.Errorf("failed to compress bundle: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to compress bundle: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeBundle разбирает закодированный пакет. Принимает и голое SdpPayload
// без кандидатов.
func DecodeBundle(encoded string) (ConnectionBundle, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return ConnectionBundle{}, errEmptyBundle
	}

	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ConnectionBundle{}, fmt.Errorf("failed to decode base64: %w", err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return ConnectionBundle{}, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(io.LimitReader(gz, MaxBundleSize+1))
	if err != nil {
		return ConnectionBundle{}, fmt.Errorf("failed to decompress bundle: %w", err)
	}
	if len(raw) > MaxBundleSize {
		return ConnectionBundle{}, errBundleTooBig
	}

	var bundle ConnectionBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return ConnectionBundle{}, fmt.Errorf("failed to parse bundle: %w", err)
	}
	if bundle.SdpPayload.SDP.SDP == "" {
		var payload SdpPayload
		if err := json.Unmarshal(raw, &payload); err != nil || payload.SDP.SDP == "" {
			return ConnectionBundle{}, errMissingSDP
		}
		bundle = ConnectionBundle{SdpPayload: payload}
	}
	return bundle, nil
}

// candidateFromInit переводит кандидата pion в формат пакета
func candidateFromInit(init webrtc.ICECandidateInit, connID string) IceCandidate {
	return IceCandidate{
		Candidate:     init.Candidate,
		SDPMid:        init.SDPMid,
		SDPMLineIndex: init.SDPMLineIndex,
		ConnectionID:  connID,
	}
}

func (c IceCandidate) init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}
