package domain

import "github.com/google/uuid"

// SessionID は1接続の論理セッションを識別する16バイトのIDです。
type SessionID uuid.UUID

func NewSessionID() SessionID { return SessionID(uuid.New()) }

// SessionIDFromBytes はヘッダーに載った16バイトからSessionIDを復元します。
func SessionIDFromBytes(b [16]byte) SessionID { return SessionID(b) }

func (id SessionID) Bytes() [16]byte { return [16]byte(id) }
func (id SessionID) String() string  { return uuid.UUID(id).String() }
func (id SessionID) IsEmpty() bool   { return id == SessionID{} }

// EntityID はセッションが操作するキャラクターのEntityIDを返します。
// キャラクターのIDはセッションIDと同一です。
func (id SessionID) EntityID() EntityID { return EntityID(id) }

// RoomID はルームを識別する16バイトのIDです。
type RoomID uuid.UUID

// DefaultRoomID はJoin時にRoomIDが空だった場合に割り当てられるルームです。
var DefaultRoomID = RoomID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("arena:default")))

func NewRoomID() RoomID { return RoomID(uuid.New()) }

func (id RoomID) String() string { return uuid.UUID(id).String() }
func (id RoomID) IsEmpty() bool  { return id == RoomID{} }

// EntityID はキャラクターや弾丸などワールド上の実体を指すハンドルです。
// 参照先が既に消えている可能性があるため、利用側はレジストリで存在確認を行います。
type EntityID uuid.UUID

func NewEntityID() EntityID { return EntityID(uuid.New()) }

func (id EntityID) String() string { return uuid.UUID(id).String() }
func (id EntityID) IsEmpty() bool  { return id == EntityID{} }

// SessionID はキャラクターのEntityIDを操作しているセッションIDとして解釈します。
func (id EntityID) SessionID() SessionID { return SessionID(id) }
