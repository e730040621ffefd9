package mqttclient

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

var (
	ErrUnknownPacketType          = errors.New("unknown packet type")
	ErrUnsupportedProtocolVersion = errors.New("unsupported protocol version, only 3.1 and 3.1.1 are framed")
)

// PahoTransport frames packets on a net.Conn with the Eclipse Paho MQTT
// 3.1/3.1.1 codec.
type PahoTransport struct {
	conn   net.Conn
	reader *bufio.Reader

	// WriteTimeout sets a deadline on each write when positive.
	WriteTimeout time.Duration
}

// NewPahoTransport wraps conn.
func NewPahoTransport(conn net.Conn) *PahoTransport {
	return &PahoTransport{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// ReadPacket blocks until the next packet is decoded.
func (t *PahoTransport) ReadPacket() (Packet, error) {
	cp, err := packets.ReadPacket(t.reader)
	if err != nil {
		return nil, err
	}
	return decodePacket(cp)
}

// WritePacket encodes pkt and writes it in one call.
func (t *PahoTransport) WritePacket(pkt Packet) error {
	cp, err := encodePacket(pkt)
	if err != nil {
		return err
	}
	if t.WriteTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout)); err != nil {
			return err
		}
	}
	return cp.Write(t.conn)
}

// Close closes the connection.
func (t *PahoTransport) Close() error {
	return t.conn.Close()
}

// RemoteAddr returns the broker address.
func (t *PahoTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func encodePacket(pkt Packet) (packets.ControlPacket, error) {
	switch p := pkt.(type) {
	case *ConnectPacket:
		cp := packets.NewControlPacket(packets.Connect).(*packets.ConnectPacket)
		version := p.ProtocolVersion
		if version == 0 {
			version = ProtocolMQTT311
		}
		if version != ProtocolMQTT31 && version != ProtocolMQTT311 {
			return nil, fmt.Errorf("%s: %w", version, ErrUnsupportedProtocolVersion)
		}
		cp.ProtocolName = version.Name()
		cp.ProtocolVersion = byte(version)
		cp.CleanSession = p.CleanSession
		cp.Keepalive = p.KeepAlive
		cp.ClientIdentifier = p.ClientID
		if p.WillFlag {
			cp.WillFlag = true
			cp.WillTopic = p.WillTopic
			cp.WillMessage = p.WillPayload
			cp.WillQos = p.WillQoS
			cp.WillRetain = p.WillRetain
		}
		if p.Username != "" {
			cp.UsernameFlag = true
			cp.Username = p.Username
		}
		if len(p.Password) > 0 {
			cp.PasswordFlag = true
			cp.Password = p.Password
		}
		return cp, nil

	case *ConnackPacket:
		cp := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
		cp.SessionPresent = p.SessionPresent
		cp.ReturnCode = connectReturnCode(p.ReasonCode)
		return cp, nil

	case *PublishPacket:
		cp := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
		cp.TopicName = p.Topic
		cp.Payload = p.Payload
		cp.Qos = p.QoS
		cp.Retain = p.Retain
		cp.Dup = p.DUP
		cp.MessageID = p.PacketID
		return cp, nil

	case *PubackPacket:
		cp := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
		cp.MessageID = p.PacketID
		return cp, nil

	case *PubrecPacket:
		cp := packets.NewControlPacket(packets.Pubrec).(*packets.PubrecPacket)
		cp.MessageID = p.PacketID
		return cp, nil

	case *PubrelPacket:
		cp := packets.NewControlPacket(packets.Pubrel).(*packets.PubrelPacket)
		cp.MessageID = p.PacketID
		return cp, nil

	case *PubcompPacket:
		cp := packets.NewControlPacket(packets.Pubcomp).(*packets.PubcompPacket)
		cp.MessageID = p.PacketID
		return cp, nil

	case *SubscribePacket:
		cp := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
		cp.MessageID = p.PacketID
		for _, t := range p.Topics {
			cp.Topics = append(cp.Topics, t.Filter)
			cp.Qoss = append(cp.Qoss, t.QoS)
		}
		return cp, nil

	case *SubackPacket:
		cp := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
		cp.MessageID = p.PacketID
		for _, rc := range p.ReasonCodes {
			cp.ReturnCodes = append(cp.ReturnCodes, byte(rc))
		}
		return cp, nil

	case *UnsubscribePacket:
		cp := packets.NewControlPacket(packets.Unsubscribe).(*packets.UnsubscribePacket)
		cp.MessageID = p.PacketID
		cp.Topics = append(cp.Topics, p.Filters...)
		return cp, nil

	case *UnsubackPacket:
		cp := packets.NewControlPacket(packets.Unsuback).(*packets.UnsubackPacket)
		cp.MessageID = p.PacketID
		return cp, nil

	case *PingreqPacket:
		return packets.NewControlPacket(packets.Pingreq), nil

	case *PingrespPacket:
		return packets.NewControlPacket(packets.Pingresp), nil

	case *DisconnectPacket:
		return packets.NewControlPacket(packets.Disconnect), nil
	}

	return nil, fmt.Errorf("%w: %T", ErrUnknownPacketType, pkt)
}

func decodePacket(cp packets.ControlPacket) (Packet, error) {
	switch p := cp.(type) {
	case *packets.ConnectPacket:
		return &ConnectPacket{
			ProtocolVersion: ProtocolVersion(p.ProtocolVersion),
			ClientID:        p.ClientIdentifier,
			CleanSession:    p.CleanSession,
			KeepAlive:       p.Keepalive,
			Username:        p.Username,
			Password:        p.Password,
			WillFlag:        p.WillFlag,
			WillTopic:       p.WillTopic,
			WillPayload:     p.WillMessage,
			WillQoS:         p.WillQos,
			WillRetain:      p.WillRetain,
		}, nil

	case *packets.ConnackPacket:
		return &ConnackPacket{
			SessionPresent: p.SessionPresent,
			ReasonCode:     ReasonCodeFromConnectReturnCode(p.ReturnCode),
		}, nil

	case *packets.PublishPacket:
		return &PublishPacket{
			PacketID: p.MessageID,
			Topic:    p.TopicName,
			Payload:  p.Payload,
			QoS:      p.Qos,
			Retain:   p.Retain,
			DUP:      p.Dup,
		}, nil

	case *packets.PubackPacket:
		return &PubackPacket{PacketID: p.MessageID}, nil

	case *packets.PubrecPacket:
		return &PubrecPacket{PacketID: p.MessageID}, nil

	case *packets.PubrelPacket:
		return &PubrelPacket{PacketID: p.MessageID}, nil

	case *packets.PubcompPacket:
		return &PubcompPacket{PacketID: p.MessageID}, nil

	case *packets.SubscribePacket:
		sub := &SubscribePacket{PacketID: p.MessageID}
		for i, filter := range p.Topics {
			var qos byte
			if i < len(p.Qoss) {
				qos = p.Qoss[i]
			}
			sub.Topics = append(sub.Topics, TopicRequest{Filter: filter, QoS: qos})
		}
		return sub, nil

	case *packets.SubackPacket:
		ack := &SubackPacket{PacketID: p.MessageID}
		for _, rc := range p.ReturnCodes {
			ack.ReasonCodes = append(ack.ReasonCodes, ReasonCode(rc))
		}
		return ack, nil

	case *packets.UnsubscribePacket:
		return &UnsubscribePacket{PacketID: p.MessageID, Filters: p.Topics}, nil

	case *packets.UnsubackPacket:
		return &UnsubackPacket{PacketID: p.MessageID}, nil

	case *packets.PingreqPacket:
		return &PingreqPacket{}, nil

	case *packets.PingrespPacket:
		return &PingrespPacket{}, nil

	case *packets.DisconnectPacket:
		return &DisconnectPacket{}, nil
	}

	return nil, fmt.Errorf("%w: %T", ErrUnknownPacketType, cp)
}

// connectReturnCode maps a reason code back to an MQTT 3.1.1 CONNACK code.
func connectReturnCode(rc ReasonCode) byte {
	switch rc {
	case ReasonSuccess:
		return packets.Accepted
	case ReasonUnsupportedProtocolVersion:
		return packets.ErrRefusedBadProtocolVersion
	case ReasonClientIDNotValid:
		return packets.ErrRefusedIDRejected
	case ReasonBadUserNameOrPassword:
		return packets.ErrRefusedBadUsernameOrPassword
	case ReasonNotAuthorized:
		return packets.ErrRefusedNotAuthorised
	default:
		return packets.ErrRefusedServerUnavailable
	}
}
