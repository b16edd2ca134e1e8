package domain

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// バイトオーダー: リトルエンディアン
var byteOrder = binary.LittleEndian

const (
	ProtocolVersion   = 1
	HeaderSize        = 25
	PayloadHeaderSize = 2
	JoinPayloadSize   = 16
)

// Header はメッセージヘッダー (25バイト)
//
//	version    u8      (1)
//	sessionID  [16]byte (16)
//	seq        u16     (2)
//	length     u16     (2)  - ペイロード長
//	timestamp  u32     (4)
type Header struct {
	Version   uint8
	SessionID [16]byte
	Seq       uint16
	Length    uint16
	Timestamp uint32
}

// DataType はメッセージの種別
type DataType uint8

const (
	DataTypeInput   DataType = 1
	DataTypeActor   DataType = 2
	DataTypeControl DataType = 4
	DataTypeFire    DataType = 6
	DataTypeHit     DataType = 7
	DataTypeEffect  DataType = 8
)

// ActorSubType はactorメッセージのサブタイプ
type ActorSubType uint8

const (
	ActorSubTypeSpawn   ActorSubType = 1
	ActorSubTypeUpdate  ActorSubType = 2
	ActorSubTypeDespawn ActorSubType = 3
)

// ControlSubType はcontrolメッセージのサブタイプ
type ControlSubType uint8

const (
	ControlSubTypeJoin   ControlSubType = 1
	ControlSubTypeLeave  ControlSubType = 2
	ControlSubTypeKick   ControlSubType = 3
	ControlSubTypePing   ControlSubType = 4
	ControlSubTypePong   ControlSubType = 5
	ControlSubTypeError  ControlSubType = 6
	ControlSubTypeAssign ControlSubType = 7
)

// FireSubType はfireメッセージのサブタイプ
type FireSubType uint8

const (
	FireSubTypeRequest FireSubType = 1
)

// HitSubType はhitメッセージのサブタイプ
type HitSubType uint8

const (
	HitSubTypeRecord HitSubType = 1
)

// EffectSubType はeffectメッセージのサブタイプ
type EffectSubType uint8

const (
	EffectSubTypeImpact    EffectSubType = 1
	EffectSubTypeMuzzle    EffectSubType = 2
	EffectSubTypeOutOfAmmo EffectSubType = 3
)

// PayloadHeader はペイロードヘッダー (2バイト)
//
//	datatype  u8 (1)
//	subtype   u8 (1)
type PayloadHeader struct {
	DataType DataType
	SubType  uint8
}

var (
	ErrInvalidHeaderSize  = errors.New("invalid header size")
	ErrInvalidPayloadSize = errors.New("invalid payload size")
)

// ParseHeader はバイト列からHeaderをパースする
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidHeaderSize
	}

	var sessionID [16]byte
	copy(sessionID[:], data[1:17])

	return &Header{
		Version:   data[0],
		SessionID: sessionID,
		Seq:       byteOrder.Uint16(data[17:19]),
		Length:    byteOrder.Uint16(data[19:21]),
		Timestamp: byteOrder.Uint32(data[21:25]),
	}, nil
}

// Encode はHeaderをバイト列にエンコードする
func (h *Header) Encode() []byte {
	data := make([]byte, HeaderSize)
	data[0] = h.Version
	copy(data[1:17], h.SessionID[:])
	byteOrder.PutUint16(data[17:19], h.Seq)
	byteOrder.PutUint16(data[19:21], h.Length)
	byteOrder.PutUint32(data[21:25], h.Timestamp)
	return data
}

// ParsePayloadHeader はバイト列からPayloadHeaderをパースする
func ParsePayloadHeader(data []byte) (*PayloadHeader, error) {
	if len(data) < PayloadHeaderSize {
		return nil, ErrInvalidPayloadSize
	}

	return &PayloadHeader{
		DataType: DataType(data[0]),
		SubType:  data[1],
	}, nil
}

// Encode はPayloadHeaderをバイト列にエンコードする
func (p *PayloadHeader) Encode() []byte {
	data := make([]byte, PayloadHeaderSize)
	data[0] = byte(p.DataType)
	data[1] = byte(p.SubType)
	return data
}

// EncodeMessage はヘッダー・ペイロードヘッダー・ペイロードを連結した1メッセージを作る
func EncodeMessage(sessionID SessionID, seq uint16, dataType DataType, subType uint8, payload []byte) []byte {
	header := Header{
		Version:   ProtocolVersion,
		SessionID: sessionID.Bytes(),
		Seq:       seq,
		Length:    uint16(PayloadHeaderSize + len(payload)),
		Timestamp: NowMillis32(),
	}
	payloadHeader := PayloadHeader{DataType: dataType, SubType: subType}

	data := make([]byte, HeaderSize+PayloadHeaderSize+len(payload))
	copy(data[:HeaderSize], header.Encode())
	copy(data[HeaderSize:], payloadHeader.Encode())
	copy(data[HeaderSize+PayloadHeaderSize:], payload)
	return data
}

// SplitMessage はメッセージをヘッダー・ペイロードヘッダー・ペイロード本体に分解する
func SplitMessage(data []byte) (*Header, *PayloadHeader, []byte, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, nil, nil, err
	}
	payloadHeader, err := ParsePayloadHeader(data[HeaderSize:])
	if err != nil {
		return nil, nil, nil, err
	}
	return header, payloadHeader, data[HeaderSize+PayloadHeaderSize:], nil
}

// NowMillis32 はヘッダーのtimestampに載せるミリ秒時刻（下位32bit）を返す
func NowMillis32() uint32 {
	return uint32(time.Now().UnixMilli() & 0xFFFFFFFF)
}

// EncodeAssignMessage はセッションID通知メッセージをエンコードする
// クライアントに自分のセッションIDを通知するために使用
func EncodeAssignMessage(sessionID SessionID) []byte {
	return EncodeMessage(sessionID, 0, DataTypeControl, uint8(ControlSubTypeAssign), nil)
}

// EncodeLeaveMessage はルーム離脱メッセージをエンコードする
// 異常切断時にclose()からRoom離脱を通知するために使用
func EncodeLeaveMessage(sessionID SessionID) []byte {
	return EncodeMessage(sessionID, 0, DataTypeControl, uint8(ControlSubTypeLeave), nil)
}

// EncodePingMessage はPingメッセージをエンコードする
// クライアントに死活確認のpingを送信するために使用
func EncodePingMessage(sessionID SessionID) []byte {
	return EncodeMessage(sessionID, 0, DataTypeControl, uint8(ControlSubTypePing), nil)
}

// JoinPayload はルーム参加メッセージのペイロード (16バイト)
//
//	roomID  [16]byte  - ルームID (UUID)
type JoinPayload struct {
	RoomID RoomID
}

var ErrInvalidJoinPayloadSize = errors.New("invalid join payload size")

// ParseJoinPayload はバイト列からJoinPayloadをパースする
func ParseJoinPayload(data []byte) (*JoinPayload, error) {
	if len(data) < JoinPayloadSize {
		return nil, ErrInvalidJoinPayloadSize
	}

	var roomID RoomID
	copy(roomID[:], data[:JoinPayloadSize])

	return &JoinPayload{
		RoomID: roomID,
	}, nil
}

// Encode はJoinPayloadをバイト列にエンコードする
func (j *JoinPayload) Encode() []byte {
	out := make([]byte, JoinPayloadSize)
	copy(out, j.RoomID[:])
	return out
}

// ActorStateSize はActorStatePayloadのサイズ
const ActorStateSize = 16 + 2*Vec3Size + 1 + 1

// ActorStatePayload はキャラの位置・照準 (42バイト)
//
//	entity  [16]byte (16)
//	pos     Vec3     (12)
//	aim     Vec3     (12)
//	hp      u8       (1)
//	flags   u8       (1)
type ActorStatePayload struct {
	Entity   EntityID
	Position Vec3
	Aim      Vec3
	HP       uint8
	Flags    uint8
}

// ParseActorState はバイト列からActorStatePayloadをパースする
func ParseActorState(data []byte) (*ActorStatePayload, error) {
	if len(data) < ActorStateSize {
		return nil, ErrInvalidActorStateSize
	}
	var a ActorStatePayload
	copy(a.Entity[:], data[0:16])
	a.Position, _ = ParseVec3(data[16:28])
	a.Aim, _ = ParseVec3(data[28:40])
	a.HP = data[40]
	a.Flags = data[41]
	return &a, nil
}

// Encode はActorStatePayloadをバイト列にエンコードする
func (a *ActorStatePayload) Encode() []byte {
	data := make([]byte, ActorStateSize)
	copy(data[0:16], a.Entity[:])
	a.Position.put(data[16:28])
	a.Aim.put(data[28:40])
	data[40] = a.HP
	data[41] = a.Flags
	return data
}

// 入力キーマスクのビット
const (
	InputFire      uint32 = 1 << 0 // トリガーを引いている
	InputTargeting uint32 = 1 << 1 // 精密照準モード
)

// InputPayloadSize はInputPayloadのサイズ
const InputPayloadSize = 4

// InputPayload はユーザー入力 (4バイト)
//
//	keyMask uint32 (4) - キー入力ビットマスク
type InputPayload struct {
	KeyMask uint32
}

// ParseInputPayload はバイト列からInputPayloadをパースする
func ParseInputPayload(data []byte) (*InputPayload, error) {
	if len(data) < InputPayloadSize {
		return nil, ErrInvalidInputPayloadSize
	}

	return &InputPayload{
		KeyMask: byteOrder.Uint32(data[0:4]),
	}, nil
}

// Encode はInputPayloadをバイト列にエンコードする
func (i *InputPayload) Encode() []byte {
	data := make([]byte, InputPayloadSize)
	byteOrder.PutUint32(data[0:4], i.KeyMask)
	return data
}

// MaxPellets は1回のfire-requestに載せられるペレット数の上限
const MaxPellets = 32

// fireRequestFixedSize はペレット列より前の固定部分
const fireRequestFixedSize = 2 + 4 + 2*Vec3Size + 1

// FireRequestPayload は射撃要求 (可変長)
//
//	seq        u16      (2)  - 発砲シーケンス。拡散の乱数列もこれで選ぶ
//	clientTS   u32      (4)  - クライアント時刻 (ms)
//	origin     Vec3     (12)
//	aim        Vec3     (12) - 拡散を掛ける前の照準方向
//	count      u8       (1)  - ペレット数
//	directions []Vec3   (12 * count) - 拡散適用済みの方向
type FireRequestPayload struct {
	Seq             uint16
	ClientTimestamp uint32
	Origin          Vec3
	Aim             Vec3
	Directions      []Vec3
}

// ParseFireRequest はバイト列からFireRequestPayloadをパースする
func ParseFireRequest(data []byte) (*FireRequestPayload, error) {
	if len(data) < fireRequestFixedSize {
		return nil, ErrInvalidFireRequestSize
	}
	count := int(data[30])
	if count == 0 || count > MaxPellets {
		return nil, ErrInvalidFireRequestSize
	}
	if len(data) < fireRequestFixedSize+count*Vec3Size {
		return nil, ErrInvalidFireRequestSize
	}
	origin, _ := ParseVec3(data[6:18])
	aim, _ := ParseVec3(data[18:30])
	req := &FireRequestPayload{
		Seq:             byteOrder.Uint16(data[0:2]),
		ClientTimestamp: byteOrder.Uint32(data[2:6]),
		Origin:          origin,
		Aim:             aim,
		Directions:      make([]Vec3, 0, count),
	}
	offset := fireRequestFixedSize
	for i := 0; i < count; i++ {
		dir, _ := ParseVec3(data[offset : offset+Vec3Size])
		req.Directions = append(req.Directions, dir)
		offset += Vec3Size
	}
	return req, nil
}

// Encode はFireRequestPayloadをバイト列にエンコードする
func (f *FireRequestPayload) Encode() []byte {
	data := make([]byte, fireRequestFixedSize+len(f.Directions)*Vec3Size)
	byteOrder.PutUint16(data[0:2], f.Seq)
	byteOrder.PutUint32(data[2:6], f.ClientTimestamp)
	f.Origin.put(data[6:18])
	f.Aim.put(data[18:30])
	data[30] = uint8(len(f.Directions))
	offset := fireRequestFixedSize
	for _, dir := range f.Directions {
		dir.put(data[offset : offset+Vec3Size])
		offset += Vec3Size
	}
	return data
}

// DamageShape はヒットレコードがどの形状のダメージを保持しているかの識別子
type DamageShape uint8

const (
	ShapeGeneric DamageShape = 0
	ShapePoint   DamageShape = 1
	ShapeRadial  DamageShape = 2
)

// PointPayloadSize はPointPayloadのサイズ
const PointPayloadSize = 2*Vec3Size + 1

// PointPayload は点ダメージの付帯情報 (25バイト)
//
//	location  Vec3 (12)
//	direction Vec3 (12)
//	surface   u8   (1)
type PointPayload struct {
	Location  Vec3
	Direction Vec3
	Surface   SurfaceType
}

// RadialPayloadSize はRadialPayloadのサイズ
const RadialPayloadSize = Vec3Size + 4

// RadialPayload は範囲ダメージの付帯情報 (16バイト)
//
//	origin Vec3 (12)
//	radius f32  (4)
type RadialPayload struct {
	Origin Vec3
	Radius float32
}

// MaxDamageTypeLen はダメージ種別タグの最大長
const MaxDamageTypeLen = 255

const hitRecordFixedSize = 16 + 4 + 1

// HitRecordPayload はヒットレコードの複製メッセージ (可変長)
//
//	victim     [16]byte (16)
//	damage     f32      (4)
//	typeLen    u8       (1)
//	damageType []byte   (typeLen)
//	instigator [16]byte (16)
//	causer     [16]byte (16)
//	shape      u8       (1)
//	lethal     u8       (1)
//	dirty      u8       (1)  - 意味を持たないが必ず載せる。変化が再送の契機になる
//	shot       u16      (2)  - 原因となった射撃要求のseq。サーバー自身の射撃では0
//	shapeData  []byte   (0 / 25 / 16)
type HitRecordPayload struct {
	Victim       EntityID
	ActualDamage float32
	DamageType   string
	Instigator   EntityID
	Causer       EntityID
	Shape        DamageShape
	Lethal       bool
	Dirty        uint8
	Shot         uint16
	Point        PointPayload
	Radial       RadialPayload
}

// ParseHitRecord はバイト列からHitRecordPayloadをパースする
func ParseHitRecord(data []byte) (*HitRecordPayload, error) {
	if len(data) < hitRecordFixedSize {
		return nil, ErrInvalidHitRecordSize
	}
	var h HitRecordPayload
	copy(h.Victim[:], data[0:16])
	h.ActualDamage = math.Float32frombits(byteOrder.Uint32(data[16:20]))
	typeLen := int(data[20])
	offset := hitRecordFixedSize
	if len(data) < offset+typeLen+16+16+5 {
		return nil, ErrInvalidHitRecordSize
	}
	h.DamageType = string(data[offset : offset+typeLen])
	offset += typeLen
	copy(h.Instigator[:], data[offset:offset+16])
	offset += 16
	copy(h.Causer[:], data[offset:offset+16])
	offset += 16
	h.Shape = DamageShape(data[offset])
	h.Lethal = data[offset+1] != 0
	h.Dirty = data[offset+2]
	h.Shot = byteOrder.Uint16(data[offset+3 : offset+5])
	offset += 5

	switch h.Shape {
	case ShapeGeneric:
	case ShapePoint:
		if len(data) < offset+PointPayloadSize {
			return nil, ErrInvalidHitRecordSize
		}
		h.Point.Location, _ = ParseVec3(data[offset:])
		h.Point.Direction, _ = ParseVec3(data[offset+Vec3Size:])
		h.Point.Surface = SurfaceType(data[offset+2*Vec3Size])
	case ShapeRadial:
		if len(data) < offset+RadialPayloadSize {
			return nil, ErrInvalidHitRecordSize
		}
		h.Radial.Origin, _ = ParseVec3(data[offset:])
		h.Radial.Radius = math.Float32frombits(byteOrder.Uint32(data[offset+Vec3Size:]))
	default:
		return nil, ErrUnknownDamageShape
	}
	return &h, nil
}

// Encode はHitRecordPayloadをバイト列にエンコードする
func (h *HitRecordPayload) Encode() []byte {
	damageType := h.DamageType
	if len(damageType) > MaxDamageTypeLen {
		damageType = damageType[:MaxDamageTypeLen]
	}
	size := hitRecordFixedSize + len(damageType) + 16 + 16 + 5
	switch h.Shape {
	case ShapePoint:
		size += PointPayloadSize
	case ShapeRadial:
		size += RadialPayloadSize
	}

	data := make([]byte, size)
	copy(data[0:16], h.Victim[:])
	byteOrder.PutUint32(data[16:20], math.Float32bits(h.ActualDamage))
	data[20] = uint8(len(damageType))
	offset := hitRecordFixedSize
	copy(data[offset:], damageType)
	offset += len(damageType)
	copy(data[offset:offset+16], h.Instigator[:])
	offset += 16
	copy(data[offset:offset+16], h.Causer[:])
	offset += 16
	data[offset] = byte(h.Shape)
	if h.Lethal {
		data[offset+1] = 1
	}
	data[offset+2] = h.Dirty
	byteOrder.PutUint16(data[offset+3:offset+5], h.Shot)
	offset += 5

	switch h.Shape {
	case ShapePoint:
		h.Point.Location.put(data[offset:])
		h.Point.Direction.put(data[offset+Vec3Size:])
		data[offset+2*Vec3Size] = byte(h.Point.Surface)
	case ShapeRadial:
		h.Radial.Origin.put(data[offset:])
		byteOrder.PutUint32(data[offset+Vec3Size:], math.Float32bits(h.Radial.Radius))
	}
	return data
}

// EffectPayloadSize はEffectPayloadのサイズ
const EffectPayloadSize = 16 + Vec3Size + 1

// EffectPayload は演出用イベント (29バイト)。受信側は解釈せずに演出へ渡す。
//
//	entity   [16]byte (16) - 発生源
//	location Vec3     (12)
//	surface  u8       (1)
type EffectPayload struct {
	Entity   EntityID
	Location Vec3
	Surface  SurfaceType
}

// ParseEffect はバイト列からEffectPayloadをパースする
func ParseEffect(data []byte) (*EffectPayload, error) {
	if len(data) < EffectPayloadSize {
		return nil, ErrInvalidEffectSize
	}
	var e EffectPayload
	copy(e.Entity[:], data[0:16])
	e.Location, _ = ParseVec3(data[16:28])
	e.Surface = SurfaceType(data[28])
	return &e, nil
}

// Encode はEffectPayloadをバイト列にエンコードする
func (e *EffectPayload) Encode() []byte {
	data := make([]byte, EffectPayloadSize)
	copy(data[0:16], e.Entity[:])
	e.Location.put(data[16:28])
	data[28] = byte(e.Surface)
	return data
}

// エラー定義
var (
	ErrInvalidActorStateSize   = errors.New("invalid actor state size")
	ErrInvalidInputPayloadSize = errors.New("invalid input payload size")
	ErrInvalidFireRequestSize  = errors.New("invalid fire request size")
	ErrInvalidHitRecordSize    = errors.New("invalid hit record size")
	ErrUnknownDamageShape      = errors.New("unknown damage shape")
	ErrInvalidEffectSize       = errors.New("invalid effect size")
)
