package mqttclient

// PacketType represents an MQTT control packet type.
type PacketType byte

// Control packet types.
const (
	PacketCONNECT     PacketType = 1
	PacketCONNACK     PacketType = 2
	PacketPUBLISH     PacketType = 3
	PacketPUBACK      PacketType = 4
	PacketPUBREC      PacketType = 5
	PacketPUBREL      PacketType = 6
	PacketPUBCOMP     PacketType = 7
	PacketSUBSCRIBE   PacketType = 8
	PacketSUBACK      PacketType = 9
	PacketUNSUBSCRIBE PacketType = 10
	PacketUNSUBACK    PacketType = 11
	PacketPINGREQ     PacketType = 12
	PacketPINGRESP    PacketType = 13
	PacketDISCONNECT  PacketType = 14
)

// String returns the packet type name.
func (p PacketType) String() string {
	switch p {
	case PacketCONNECT:
		return "CONNECT"
	case PacketCONNACK:
		return "CONNACK"
	case PacketPUBLISH:
		return "PUBLISH"
	case PacketPUBACK:
		return "PUBACK"
	case PacketPUBREC:
		return "PUBREC"
	case PacketPUBREL:
		return "PUBREL"
	case PacketPUBCOMP:
		return "PUBCOMP"
	case PacketSUBSCRIBE:
		return "SUBSCRIBE"
	case PacketSUBACK:
		return "SUBACK"
	case PacketUNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case PacketUNSUBACK:
		return "UNSUBACK"
	case PacketPINGREQ:
		return "PINGREQ"
	case PacketPINGRESP:
		return "PINGRESP"
	case PacketDISCONNECT:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// QoS levels.
const (
	QoS0 byte = 0
	QoS1 byte = 1
	QoS2 byte = 2
)

// Packet is a decoded MQTT control packet.
// Encoding and decoding live in the Transport; the client only handles values.
type Packet interface {
	Type() PacketType
}

// ConnectPacket is sent by the client to open a session.
type ConnectPacket struct {
	ProtocolVersion ProtocolVersion
	ClientID        string
	CleanSession    bool
	KeepAlive       uint16
	Username        string
	Password        []byte

	WillFlag    bool
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

// Type returns PacketCONNECT.
func (p *ConnectPacket) Type() PacketType { return PacketCONNECT }

// ConnackPacket is the server response to CONNECT.
type ConnackPacket struct {
	SessionPresent bool
	ReasonCode     ReasonCode
}

// Type returns PacketCONNACK.
func (p *ConnackPacket) Type() PacketType { return PacketCONNACK }

// PublishPacket carries an application message in either direction.
type PublishPacket struct {
	PacketID uint16
	Topic    string
	Payload  []byte
	QoS      byte
	Retain   bool
	DUP      bool
}

// Type returns PacketPUBLISH.
func (p *PublishPacket) Type() PacketType { return PacketPUBLISH }

// Clone returns a shallow copy sharing the payload.
func (p *PublishPacket) Clone() *PublishPacket {
	c := *p
	return &c
}

// PubackPacket acknowledges a QoS 1 PUBLISH.
type PubackPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
}

// Type returns PacketPUBACK.
func (p *PubackPacket) Type() PacketType { return PacketPUBACK }

// PubrecPacket is the first acknowledgment of a QoS 2 PUBLISH.
type PubrecPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
}

// Type returns PacketPUBREC.
func (p *PubrecPacket) Type() PacketType { return PacketPUBREC }

// PubrelPacket releases a QoS 2 message after PUBREC.
type PubrelPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
}

// Type returns PacketPUBREL.
func (p *PubrelPacket) Type() PacketType { return PacketPUBREL }

// PubcompPacket completes a QoS 2 flow.
type PubcompPacket struct {
	PacketID   uint16
	ReasonCode ReasonCode
}

// Type returns PacketPUBCOMP.
func (p *PubcompPacket) Type() PacketType { return PacketPUBCOMP }

// TopicRequest is a single topic filter of a SUBSCRIBE packet.
type TopicRequest struct {
	Filter string
	QoS    byte
}

// SubscribePacket requests one or more subscriptions.
type SubscribePacket struct {
	PacketID uint16
	Topics   []TopicRequest
}

// Type returns PacketSUBSCRIBE.
func (p *SubscribePacket) Type() PacketType { return PacketSUBSCRIBE }

// SubackPacket acknowledges a SUBSCRIBE, one reason code per requested filter.
type SubackPacket struct {
	PacketID    uint16
	ReasonCodes []ReasonCode
}

// Type returns PacketSUBACK.
func (p *SubackPacket) Type() PacketType { return PacketSUBACK }

// UnsubscribePacket removes subscriptions.
type UnsubscribePacket struct {
	PacketID uint16
	Filters  []string
}

// Type returns PacketUNSUBSCRIBE.
func (p *UnsubscribePacket) Type() PacketType { return PacketUNSUBSCRIBE }

// UnsubackPacket acknowledges an UNSUBSCRIBE.
type UnsubackPacket struct {
	PacketID    uint16
	ReasonCodes []ReasonCode
}

// Type returns PacketUNSUBACK.
func (p *UnsubackPacket) Type() PacketType { return PacketUNSUBACK }

// PingreqPacket is the keep-alive request.
type PingreqPacket struct{}

// Type returns PacketPINGREQ.
func (p *PingreqPacket) Type() PacketType { return PacketPINGREQ }

// PingrespPacket is the keep-alive response.
type PingrespPacket struct{}

// Type returns PacketPINGRESP.
func (p *PingrespPacket) Type() PacketType { return PacketPINGRESP }

// DisconnectPacket closes the session gracefully.
type DisconnectPacket struct {
	ReasonCode ReasonCode
}

// Type returns PacketDISCONNECT.
func (p *DisconnectPacket) Type() PacketType { return PacketDISCONNECT }

// packetID returns the packet identifier of packets that carry one.
func packetID(pkt Packet) (uint16, bool) {
	switch p := pkt.(type) {
	case *PublishPacket:
		return p.PacketID, p.QoS > QoS0
	case *PubackPacket:
		return p.PacketID, true
	case *PubrecPacket:
		return p.PacketID, true
	case *PubrelPacket:
		return p.PacketID, true
	case *PubcompPacket:
		return p.PacketID, true
	case *SubscribePacket:
		return p.PacketID, true
	case *SubackPacket:
		return p.PacketID, true
	case *UnsubscribePacket:
		return p.PacketID, true
	case *UnsubackPacket:
		return p.PacketID, true
	}
	return 0, false
}
