package statechange

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// フレームは固定長ヘッダ、ペイロードヘッダ、msgpack 本体の順に並びます。
//
//	+---------+-------+--------------+----------+---------+------+
//	| version | flags | length (u32) | dataType | subType | body |
//	+---------+-------+--------------+----------+---------+------+
//
// length はペイロードヘッダと本体を合わせた長さです。
const (
	ProtocolVersion   = 1
	HeaderSize        = 6
	PayloadHeaderSize = 2
	MaxFrameSize      = 1 << 20
)

var (
	// ErrShortFrame はフレームがヘッダより短い場合に返されます。
	ErrShortFrame = errors.New("statechange: frame too short")
	// ErrFrameLength はヘッダの長さと実際の長さが一致しない場合に返されます。
	ErrFrameLength = errors.New("statechange: frame length mismatch")
	// ErrUnsupportedVersion は未対応のプロトコルバージョンの場合に返されます。
	ErrUnsupportedVersion = errors.New("statechange: unsupported protocol version")
)

type DataType uint8

const (
	DataTypeUnknown DataType = iota
	DataTypeControl
	DataTypeGame
)

type ControlSubType uint8

const (
	ControlSubTypeUnknown ControlSubType = iota
	ControlSubTypeJoin
	ControlSubTypeLeave
	ControlSubTypeKick
)

type GameSubType uint8

const (
	GameSubTypeUnknown GameSubType = iota
	GameSubTypeHello
	GameSubTypeMoveRequest
	GameSubTypeMoveResponse
	GameSubTypeBubbleRequest
	GameSubTypeBubbleResponse
	GameSubTypeBubblePop
	GameSubTypeUnfreeze
	GameSubTypePlayerJoin
	GameSubTypePlayerLeave
	GameSubTypeSnapshot
	GameSubTypeWelcome
	GameSubTypeError
)

func (s GameSubType) String() string {
	switch s {
	case GameSubTypeHello:
		return "hello"
	case GameSubTypeMoveRequest:
		return "move-request"
	case GameSubTypeMoveResponse:
		return "move-response"
	case GameSubTypeBubbleRequest:
		return "bubble-request"
	case GameSubTypeBubbleResponse:
		return "bubble-response"
	case GameSubTypeBubblePop:
		return "bubble-pop"
	case GameSubTypeUnfreeze:
		return "unfreeze"
	case GameSubTypePlayerJoin:
		return "player-join"
	case GameSubTypePlayerLeave:
		return "player-leave"
	case GameSubTypeSnapshot:
		return "snapshot"
	case GameSubTypeWelcome:
		return "welcome"
	case GameSubTypeError:
		return "error"
	default:
		return fmt.Sprintf("GameSubType(%d)", uint8(s))
	}
}

type Header struct {
	Version uint8
	Flags   uint8
	Length  uint32
}

type PayloadHeader struct {
	DataType DataType
	SubType  uint8
}

// Frame はデコード済みのフレームです。Body は元のバッファを参照します。
type Frame struct {
	Header
	PayloadHeader
	Body []byte
}

// ParsePayloadHeader はペイロードヘッダを読み取ります。
func ParsePayloadHeader(b []byte) (PayloadHeader, error) {
	if len(b) < PayloadHeaderSize {
		return PayloadHeader{}, ErrShortFrame
	}
	return PayloadHeader{DataType: DataType(b[0]), SubType: b[1]}, nil
}

// EncodeFrame はヘッダを付けたフレームを組み立てます。
func EncodeFrame(dataType DataType, subType uint8, body []byte) []byte {
	length := PayloadHeaderSize + len(body)
	buf := make([]byte, HeaderSize+length)
	buf[0] = ProtocolVersion
	buf[1] = 0
	binary.BigEndian.PutUint32(buf[2:6], uint32(length))
	buf[6] = byte(dataType)
	buf[7] = subType
	copy(buf[HeaderSize+PayloadHeaderSize:], body)
	return buf
}

// EncodeControl は本体を持たない制御フレームを組み立てます。
func EncodeControl(sub ControlSubType) []byte {
	return EncodeFrame(DataTypeControl, uint8(sub), nil)
}

// Encode は v を msgpack で符号化したゲームフレームを組み立てます。
func Encode(sub GameSubType, v any) ([]byte, error) {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("statechange: encode %s: %w", sub, err)
	}
	return EncodeFrame(DataTypeGame, uint8(sub), body), nil
}

// DecodeFrame はフレームのヘッダを検証し、本体を切り出します。
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < HeaderSize+PayloadHeaderSize {
		return Frame{}, ErrShortFrame
	}
	h := Header{
		Version: data[0],
		Flags:   data[1],
		Length:  binary.BigEndian.Uint32(data[2:6]),
	}
	if h.Version != ProtocolVersion {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.Length > MaxFrameSize || int(h.Length) != len(data)-HeaderSize {
		return Frame{}, fmt.Errorf("%w: header %d, actual %d", ErrFrameLength, h.Length, len(data)-HeaderSize)
	}
	ph, err := ParsePayloadHeader(data[HeaderSize:])
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Header:        h,
		PayloadHeader: ph,
		Body:          data[HeaderSize+PayloadHeaderSize:],
	}, nil
}

func (f Frame) IsControl(sub ControlSubType) bool {
	return f.DataType == DataTypeControl && ControlSubType(f.SubType) == sub
}

func (f Frame) GameSubType() GameSubType {
	if f.DataType != DataTypeGame {
		return GameSubTypeUnknown
	}
	return GameSubType(f.SubType)
}

// Unmarshal は本体を v に復号します。
func (f Frame) Unmarshal(v any) error {
	if err := msgpack.Unmarshal(f.Body, v); err != nil {
		return fmt.Errorf("statechange: decode %s: %w", f.GameSubType(), err)
	}
	return nil
}
