package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
)

const (
	amountSize  = 16
	balanceSize = amountSize + 8
	paramsSize  = 5 * 8
)

// EncodeAmount writes a 128-bit amount as 16 big-endian bytes.
func EncodeAmount(dst []byte, amount *uint256.Int) {
	full := amount.Bytes32()
	copy(dst[:amountSize], full[32-amountSize:])
}

// DecodeAmount reads a 16-byte big-endian amount.
func DecodeAmount(src []byte) uint256.Int {
	var amount uint256.Int
	amount.SetBytes(src[:amountSize])
	return amount
}

func encodeBalance(balance LockedBalance) []byte {
	buf := make([]byte, balanceSize)
	EncodeAmount(buf, &balance.Amount)
	binary.BigEndian.PutUint64(buf[amountSize:], balance.UnlockTime)
	return buf
}

func decodeBalance(raw []byte) (LockedBalance, error) {
	if len(raw) != balanceSize {
		return LockedBalance{}, fmt.Errorf("decode lock: expected %d bytes, got %d", balanceSize, len(raw))
	}
	return LockedBalance{
		Amount:     DecodeAmount(raw),
		UnlockTime: binary.BigEndian.Uint64(raw[amountSize:]),
	}, nil
}

// EncodeParams serializes params as five big-endian uint64 fields.
func EncodeParams(p Params) []byte {
	buf := make([]byte, paramsSize)
	binary.BigEndian.PutUint64(buf[0:], p.StartTime)
	binary.BigEndian.PutUint64(buf[8:], p.EpochLengthMs)
	binary.BigEndian.PutUint64(buf[16:], p.MaxEpochs)
	binary.BigEndian.PutUint64(buf[24:], p.NormalizationConstant)
	binary.BigEndian.PutUint64(buf[32:], p.LockDurationMs)
	return buf
}

// DecodeParams is the inverse of EncodeParams.
func DecodeParams(raw []byte) (Params, error) {
	if len(raw) != paramsSize {
		return Params{}, fmt.Errorf("decode params: expected %d bytes, got %d", paramsSize, len(raw))
	}
	return Params{
		StartTime:             binary.BigEndian.Uint64(raw[0:]),
		EpochLengthMs:         binary.BigEndian.Uint64(raw[8:]),
		MaxEpochs:             binary.BigEndian.Uint64(raw[16:]),
		NormalizationConstant: binary.BigEndian.Uint64(raw[24:]),
		LockDurationMs:        binary.BigEndian.Uint64(raw[32:]),
	}, nil
}
