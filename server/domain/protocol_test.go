package domain

import (
	"errors"
	"math"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	original := &Header{
		Version:   1,
		SessionID: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		Seq:       100,
		Length:    256,
		Timestamp: 1234567890,
	}

	encoded := original.Encode()
	if len(encoded) != HeaderSize {
		t.Errorf("encoded size = %d, want %d", len(encoded), HeaderSize)
	}

	decoded, err := ParseHeader(encoded)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if *decoded != *original {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
}

func TestParseHeader_TooShort(t *testing.T) {
	_, err := ParseHeader(make([]byte, HeaderSize-1))
	if !errors.Is(err, ErrInvalidHeaderSize) {
		t.Errorf("err = %v, want %v", err, ErrInvalidHeaderSize)
	}
}

func TestEncodeMessage_SplitMessage(t *testing.T) {
	sessionID := NewSessionID()
	payload := []byte{9, 8, 7}

	data := EncodeMessage(sessionID, 42, DataTypeFire, uint8(FireSubTypeRequest), payload)
	if len(data) != HeaderSize+PayloadHeaderSize+len(payload) {
		t.Fatalf("len = %d, want %d", len(data), HeaderSize+PayloadHeaderSize+len(payload))
	}

	header, payloadHeader, body, err := SplitMessage(data)
	if err != nil {
		t.Fatalf("SplitMessage failed: %v", err)
	}
	if header.Version != ProtocolVersion {
		t.Errorf("Version = %d, want %d", header.Version, ProtocolVersion)
	}
	if SessionIDFromBytes(header.SessionID) != sessionID {
		t.Errorf("SessionID = %v, want %v", SessionIDFromBytes(header.SessionID), sessionID)
	}
	if header.Seq != 42 {
		t.Errorf("Seq = %d, want 42", header.Seq)
	}
	if int(header.Length) != PayloadHeaderSize+len(payload) {
		t.Errorf("Length = %d, want %d", header.Length, PayloadHeaderSize+len(payload))
	}
	if payloadHeader.DataType != DataTypeFire || payloadHeader.SubType != uint8(FireSubTypeRequest) {
		t.Errorf("payload header = %+v", payloadHeader)
	}
	if string(body) != string(payload) {
		t.Errorf("body = %v, want %v", body, payload)
	}
}

func TestVec3RoundTrip(t *testing.T) {
	original := Vec3{X: 1.5, Y: -2.25, Z: 1024}

	decoded, err := ParseVec3(original.Encode())
	if err != nil {
		t.Fatalf("ParseVec3 failed: %v", err)
	}
	if decoded != original {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}

	if _, err := ParseVec3(make([]byte, Vec3Size-1)); !errors.Is(err, ErrInvalidVec3Data) {
		t.Errorf("err = %v, want %v", err, ErrInvalidVec3Data)
	}
}

func TestVec3Normalize(t *testing.T) {
	n, ok := Vec3{X: 3, Y: 4}.Normalize()
	if !ok {
		t.Fatal("Normalize returned !ok for non-zero vector")
	}
	if !n.IsUnit(1e-9) {
		t.Errorf("len = %v, want 1", n.Len())
	}
	if _, ok := (Vec3{}).Normalize(); ok {
		t.Error("Normalize of zero vector should fail")
	}
	if _, ok := (Vec3{X: math.NaN()}).Normalize(); ok {
		t.Error("Normalize of NaN vector should fail")
	}
}

func TestActorStateRoundTrip(t *testing.T) {
	original := &ActorStatePayload{
		Entity:   NewEntityID(),
		Position: Vec3{X: 10, Y: 0, Z: -5},
		Aim:      Vec3{X: 0, Y: 1, Z: 0},
		HP:       87,
		Flags:    1,
	}

	encoded := original.Encode()
	if len(encoded) != ActorStateSize {
		t.Fatalf("encoded size = %d, want %d", len(encoded), ActorStateSize)
	}
	decoded, err := ParseActorState(encoded)
	if err != nil {
		t.Fatalf("ParseActorState failed: %v", err)
	}
	if *decoded != *original {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
}

func TestInputPayloadRoundTrip(t *testing.T) {
	original := &InputPayload{KeyMask: InputFire | InputTargeting}

	decoded, err := ParseInputPayload(original.Encode())
	if err != nil {
		t.Fatalf("ParseInputPayload failed: %v", err)
	}
	if decoded.KeyMask != original.KeyMask {
		t.Errorf("KeyMask = %b, want %b", decoded.KeyMask, original.KeyMask)
	}
}

func TestFireRequestRoundTrip(t *testing.T) {
	original := &FireRequestPayload{
		Seq:             7,
		ClientTimestamp: 123456,
		Origin:          Vec3{X: 1, Y: 2, Z: 3},
		Aim:             Vec3{X: 0, Y: 0.6, Z: 0.8},
		Directions: []Vec3{
			{X: 1, Y: 0, Z: 0},
			{X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1},
		},
	}

	encoded := original.Encode()
	if len(encoded) != fireRequestFixedSize+3*Vec3Size {
		t.Fatalf("encoded size = %d, want %d", len(encoded), fireRequestFixedSize+3*Vec3Size)
	}
	decoded, err := ParseFireRequest(encoded)
	if err != nil {
		t.Fatalf("ParseFireRequest failed: %v", err)
	}
	if decoded.Seq != original.Seq || decoded.ClientTimestamp != original.ClientTimestamp {
		t.Errorf("seq/ts = %d/%d, want %d/%d", decoded.Seq, decoded.ClientTimestamp, original.Seq, original.ClientTimestamp)
	}
	if decoded.Origin != original.Origin {
		t.Errorf("Origin = %+v, want %+v", decoded.Origin, original.Origin)
	}
	if decoded.Aim != original.Aim {
		t.Errorf("Aim = %+v, want %+v", decoded.Aim, original.Aim)
	}
	if len(decoded.Directions) != len(original.Directions) {
		t.Fatalf("len(Directions) = %d, want %d", len(decoded.Directions), len(original.Directions))
	}
	for i := range original.Directions {
		if decoded.Directions[i] != original.Directions[i] {
			t.Errorf("Directions[%d] = %+v, want %+v", i, decoded.Directions[i], original.Directions[i])
		}
	}
}

func TestParseFireRequest_Invalid(t *testing.T) {
	valid := (&FireRequestPayload{Directions: []Vec3{{X: 1}}}).Encode()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated pellets", valid[:len(valid)-1]},
		{"zero pellets", func() []byte {
			d := append([]byte(nil), valid...)
			d[30] = 0
			return d
		}()},
		{"too many pellets", func() []byte {
			d := append([]byte(nil), valid...)
			d[30] = MaxPellets + 1
			return d
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFireRequest(tt.data); !errors.Is(err, ErrInvalidFireRequestSize) {
				t.Errorf("err = %v, want %v", err, ErrInvalidFireRequestSize)
			}
		})
	}
}

func TestHitRecordRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		original HitRecordPayload
	}{
		{
			name: "generic",
			original: HitRecordPayload{
				Victim:       NewEntityID(),
				ActualDamage: 12.5,
				DamageType:   "default",
				Instigator:   NewEntityID(),
				Causer:       NewEntityID(),
				Shape:        ShapeGeneric,
				Dirty:        3,
			},
		},
		{
			name: "point",
			original: HitRecordPayload{
				Victim:       NewEntityID(),
				ActualDamage: 100,
				DamageType:   "bullet",
				Instigator:   NewEntityID(),
				Causer:       NewEntityID(),
				Shape:        ShapePoint,
				Lethal:       true,
				Dirty:        255,
				Shot:         65535,
				Point: PointPayload{
					Location:  Vec3{X: 1, Y: 2, Z: 3},
					Direction: Vec3{X: 0, Y: 0, Z: 1},
					Surface:   SurfaceFlesh,
				},
			},
		},
		{
			name: "radial",
			original: HitRecordPayload{
				Victim:       NewEntityID(),
				ActualDamage: 75,
				Instigator:   NewEntityID(),
				Shape:        ShapeRadial,
				Dirty:        1,
				Shot:         42,
				Radial:       RadialPayload{Origin: Vec3{X: -4, Y: 8, Z: 0.5}, Radius: 300},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := ParseHitRecord(tt.original.Encode())
			if err != nil {
				t.Fatalf("ParseHitRecord failed: %v", err)
			}
			if *decoded != tt.original {
				t.Errorf("decoded = %+v, want %+v", decoded, tt.original)
			}
		})
	}
}

func TestParseHitRecord_UnknownShape(t *testing.T) {
	data := (&HitRecordPayload{Shape: ShapeGeneric}).Encode()
	// shapeはペイロード末尾から5バイト目
	data[len(data)-5] = 9
	if _, err := ParseHitRecord(data); !errors.Is(err, ErrUnknownDamageShape) {
		t.Errorf("err = %v, want %v", err, ErrUnknownDamageShape)
	}
}

func TestParseHitRecord_Truncated(t *testing.T) {
	data := (&HitRecordPayload{Shape: ShapePoint, DamageType: "x"}).Encode()
	if _, err := ParseHitRecord(data[:len(data)-1]); !errors.Is(err, ErrInvalidHitRecordSize) {
		t.Errorf("err = %v, want %v", err, ErrInvalidHitRecordSize)
	}
}

func TestEffectRoundTrip(t *testing.T) {
	original := &EffectPayload{
		Entity:   NewEntityID(),
		Location: Vec3{X: 3, Y: 2, Z: 1},
		Surface:  SurfaceMetal,
	}
	encoded := original.Encode()
	if len(encoded) != EffectPayloadSize {
		t.Fatalf("encoded size = %d, want %d", len(encoded), EffectPayloadSize)
	}
	decoded, err := ParseEffect(encoded)
	if err != nil {
		t.Fatalf("ParseEffect failed: %v", err)
	}
	if *decoded != *original {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
}

func TestJoinPayloadRoundTrip(t *testing.T) {
	original := &JoinPayload{RoomID: NewRoomID()}
	decoded, err := ParseJoinPayload(original.Encode())
	if err != nil {
		t.Fatalf("ParseJoinPayload failed: %v", err)
	}
	if decoded.RoomID != original.RoomID {
		t.Errorf("RoomID = %v, want %v", decoded.RoomID, original.RoomID)
	}
}
