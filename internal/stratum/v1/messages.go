package v1

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/axeforge/bitaxe-core/internal/job"
	"github.com/axeforge/bitaxe-core/pkg/mining"
)

// request is an outbound JSON-RPC call, the client-direction twin of
// chimera-pool-core's StratumMessage.
type request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// envelope decodes any line the pool sends: either a notification
// (Method set, no ID) or a response to one of our requests (ID set,
// Result/Error present).
type envelope struct {
	ID     *int            `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func newRequest(id int, method string, params ...any) request {
	return request{ID: id, Method: method, Params: params}
}

func marshalLine(r request) ([]byte, error) {
	line, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

// decodeNotify turns a mining.notify's params array into a
// job.V1Notification, per spec §4.1/§4.6's MiningJob field order:
// job_id, prevhash, coinbase1, coinbase2, merkle_branch[], version,
// nbits, ntime, clean_jobs.
func decodeNotify(params json.RawMessage, extranonce1 []byte, extranonce2Size int) (*job.V1Notification, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(params, &fields); err != nil {
		return nil, fmt.Errorf("v1: decode notify params: %w", err)
	}
	if len(fields) < 9 {
		return nil, fmt.Errorf("v1: notify has %d params, want 9", len(fields))
	}

	var jobID, prevHashHex, coinbase1Hex, coinbase2Hex, versionHex, nbitsHex, ntimeHex string
	var merkleHex []string
	var cleanJobs bool

	if err := json.Unmarshal(fields[0], &jobID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields[1], &prevHashHex); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields[2], &coinbase1Hex); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields[3], &coinbase2Hex); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields[4], &merkleHex); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields[5], &versionHex); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields[6], &nbitsHex); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields[7], &ntimeHex); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields[8], &cleanJobs); err != nil {
		return nil, err
	}

	prevHashBytes, err := hex.DecodeString(prevHashHex)
	if err != nil || len(prevHashBytes) != 32 {
		return nil, fmt.Errorf("v1: bad prevhash %q: %w", prevHashHex, err)
	}
	var prevHash mining.DisplayHash
	copy(prevHash[:], prevHashBytes)

	coinbase1, err := hex.DecodeString(coinbase1Hex)
	if err != nil {
		return nil, fmt.Errorf("v1: bad coinbase1: %w", err)
	}
	coinbase2, err := hex.DecodeString(coinbase2Hex)
	if err != nil {
		return nil, fmt.Errorf("v1: bad coinbase2: %w", err)
	}

	merkle := make([]mining.InternalHash, 0, len(merkleHex))
	for _, h := range merkleHex {
		b, err := hex.DecodeString(h)
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("v1: bad merkle branch %q: %w", h, err)
		}
		var node mining.InternalHash
		copy(node[:], b)
		merkle = append(merkle, node)
	}

	version, err := parseHexU32(versionHex)
	if err != nil {
		return nil, err
	}
	nbits, err := parseHexU32(nbitsHex)
	if err != nil {
		return nil, err
	}
	ntime, err := parseHexU32(ntimeHex)
	if err != nil {
		return nil, err
	}

	return &job.V1Notification{
		JobID:           jobID,
		PrevHash:        prevHash,
		CoinbasePrefix:  coinbase1,
		CoinbaseSuffix:  coinbase2,
		MerkleBranch:    merkle,
		Version:         version,
		NBits:           nbits,
		NTime:           ntime,
		CleanJobs:       cleanJobs,
		Extranonce1:     extranonce1,
		Extranonce2Size: extranonce2Size,
	}, nil
}

func parseHexU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("v1: bad hex u32 %q: %w", s, err)
	}
	return uint32(v), nil
}

// decodeSetDifficulty reads mining.set_difficulty's single-float
// params array.
func decodeSetDifficulty(params json.RawMessage) (float64, error) {
	var fields []float64
	if err := json.Unmarshal(params, &fields); err != nil || len(fields) < 1 {
		return 0, fmt.Errorf("v1: decode set_difficulty: %w", err)
	}
	return fields[0], nil
}

// decodeSetExtranonce reads mining.set_extranonce's [extranonce1,
// extranonce2_size] params array.
func decodeSetExtranonce(params json.RawMessage) (extranonce1 []byte, extranonce2Size int, err error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(params, &fields); err != nil || len(fields) < 2 {
		return nil, 0, fmt.Errorf("v1: decode set_extranonce: %w", err)
	}
	var hexStr string
	if err := json.Unmarshal(fields[0], &hexStr); err != nil {
		return nil, 0, err
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, 0, fmt.Errorf("v1: bad extranonce1 %q: %w", hexStr, err)
	}
	var size int
	if err := json.Unmarshal(fields[1], &size); err != nil {
		return nil, 0, err
	}
	return b, size, nil
}

// decodeSetVersionMask reads mining.set_version_mask's single hex
// string param (mining.configure's result goes through
// decodeConfigureResult instead).
func decodeSetVersionMask(params json.RawMessage) (uint32, error) {
	var fields []string
	if err := json.Unmarshal(params, &fields); err != nil || len(fields) < 1 {
		return 0, fmt.Errorf("v1: decode set_version_mask: %w", err)
	}
	return parseHexU32(fields[0])
}

// subscribeResult is mining.subscribe's response shape:
// [[[method, subscriptionID], ...], extranonce1, extranonce2_size].
type subscribeResult struct {
	Extranonce1     []byte
	Extranonce2Size int
}

func decodeSubscribeResult(result json.RawMessage) (subscribeResult, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(result, &fields); err != nil || len(fields) < 3 {
		return subscribeResult{}, fmt.Errorf("v1: decode subscribe result: %w", err)
	}
	var extranonce1Hex string
	if err := json.Unmarshal(fields[1], &extranonce1Hex); err != nil {
		return subscribeResult{}, err
	}
	b, err := hex.DecodeString(extranonce1Hex)
	if err != nil {
		return subscribeResult{}, fmt.Errorf("v1: bad extranonce1 %q: %w", extranonce1Hex, err)
	}
	var size int
	if err := json.Unmarshal(fields[2], &size); err != nil {
		return subscribeResult{}, err
	}
	return subscribeResult{Extranonce1: b, Extranonce2Size: size}, nil
}

// decodeConfigureResult reads mining.configure's result object, extracting
// the version-rolling mask extension if the pool granted one.
func decodeConfigureResult(result json.RawMessage) (mask uint32, ok bool) {
	var obj struct {
		VersionRolling struct {
			Result bool   `json:"result"`
			Mask   string `json:"mask"`
		} `json:"version-rolling"`
	}
	if err := json.Unmarshal(result, &obj); err != nil || !obj.VersionRolling.Result {
		return 0, false
	}
	v, err := parseHexU32(obj.VersionRolling.Mask)
	if err != nil {
		return 0, false
	}
	return v, true
}

// errorMessage renders a mining.submit rejection's error field (a
// [code, message, data] triple, or a bare string) for the rejection
// histogram.
func errorMessage(raw json.RawMessage) string {
	var triple []json.RawMessage
	if err := json.Unmarshal(raw, &triple); err == nil && len(triple) >= 2 {
		var msg string
		if json.Unmarshal(triple[1], &msg) == nil {
			return msg
		}
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
