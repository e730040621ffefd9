package mqttclient

import "fmt"

// ReasonCode is an acknowledgment outcome using MQTT v5.0 numbering.
// MQTT 3.1.1 CONNACK return codes and SUBACK failures are normalized
// into this space by the transport.
type ReasonCode byte

const (
	// Success / Granted QoS 0
	ReasonSuccess ReasonCode = 0x00
	// Granted QoS 1
	ReasonGrantedQoS1 ReasonCode = 0x01
	// Granted QoS 2
	ReasonGrantedQoS2 ReasonCode = 0x02
	// No matching subscribers
	ReasonNoMatchingSubscribers ReasonCode = 0x10
	// No subscription existed
	ReasonNoSubscriptionExisted ReasonCode = 0x11
	// Unspecified error, also the MQTT 3.1.1 SUBACK failure code
	ReasonUnspecifiedError ReasonCode = 0x80
	// Malformed Packet
	ReasonMalformedPacket ReasonCode = 0x81
	// Protocol Error
	ReasonProtocolError ReasonCode = 0x82
	// Implementation specific error
	ReasonImplSpecificError ReasonCode = 0x83
	// Unsupported Protocol Version
	ReasonUnsupportedProtocolVersion ReasonCode = 0x84
	// Client Identifier not valid
	ReasonClientIDNotValid ReasonCode = 0x85
	// Bad User Name or Password
	ReasonBadUserNameOrPassword ReasonCode = 0x86
	// Not authorized
	ReasonNotAuthorized ReasonCode = 0x87
	// Server unavailable
	ReasonServerUnavailable ReasonCode = 0x88
	// Server busy
	ReasonServerBusy ReasonCode = 0x89
	// Banned
	ReasonBanned ReasonCode = 0x8A
	// Topic Filter invalid
	ReasonTopicFilterInvalid ReasonCode = 0x8F
	// Topic Name invalid
	ReasonTopicNameInvalid ReasonCode = 0x90
	// Packet Identifier in use
	ReasonPacketIDInUse ReasonCode = 0x91
	// Packet Identifier not found
	ReasonPacketIDNotFound ReasonCode = 0x92
	// Packet too large
	ReasonPacketTooLarge ReasonCode = 0x95
	// Quota exceeded
	ReasonQuotaExceeded ReasonCode = 0x97
	// Payload format invalid
	ReasonPayloadFormatInvalid ReasonCode = 0x99
)

var reasonCodeNames = map[ReasonCode]string{
	ReasonSuccess:                    "success",
	ReasonGrantedQoS1:                "granted QoS 1",
	ReasonGrantedQoS2:                "granted QoS 2",
	ReasonNoMatchingSubscribers:      "no matching subscribers",
	ReasonNoSubscriptionExisted:      "no subscription existed",
	ReasonUnspecifiedError:           "unspecified error",
	ReasonMalformedPacket:            "malformed packet",
	ReasonProtocolError:              "protocol error",
	ReasonImplSpecificError:          "implementation specific error",
	ReasonUnsupportedProtocolVersion: "unsupported protocol version",
	ReasonClientIDNotValid:           "client identifier not valid",
	ReasonBadUserNameOrPassword:      "bad user name or password",
	ReasonNotAuthorized:              "not authorized",
	ReasonServerUnavailable:          "server unavailable",
	ReasonServerBusy:                 "server busy",
	ReasonBanned:                     "banned",
	ReasonTopicFilterInvalid:         "topic filter invalid",
	ReasonTopicNameInvalid:           "topic name invalid",
	ReasonPacketIDInUse:              "packet identifier in use",
	ReasonPacketIDNotFound:           "packet identifier not found",
	ReasonPacketTooLarge:             "packet too large",
	ReasonQuotaExceeded:              "quota exceeded",
	ReasonPayloadFormatInvalid:       "payload format invalid",
}

// String returns a human readable reason.
func (r ReasonCode) String() string {
	if name, ok := reasonCodeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason code 0x%02X", byte(r))
}

// IsError returns true for failure codes (0x80 and above).
func (r ReasonCode) IsError() bool {
	return r >= 0x80
}

// IsSuccess returns true for non-failure codes.
func (r ReasonCode) IsSuccess() bool {
	return r < 0x80
}

// ReasonCodeFromConnectReturnCode maps an MQTT 3.1/3.1.1 CONNACK return code.
// MQTT 3.1.1 spec: Section 3.2.2.3
func ReasonCodeFromConnectReturnCode(code byte) ReasonCode {
	switch code {
	case 0x00:
		return ReasonSuccess
	case 0x01:
		return ReasonUnsupportedProtocolVersion
	case 0x02:
		return ReasonClientIDNotValid
	case 0x03:
		return ReasonServerUnavailable
	case 0x04:
		return ReasonBadUserNameOrPassword
	case 0x05:
		return ReasonNotAuthorized
	default:
		return ReasonUnspecifiedError
	}
}

// ProtocolVersion is the MQTT protocol level sent in CONNECT.
type ProtocolVersion byte

const (
	ProtocolMQTT31  ProtocolVersion = 3
	ProtocolMQTT311 ProtocolVersion = 4
	// ProtocolMQTT5 is only usable with a custom Transport that speaks
	// the v5 wire format. PahoTransport rejects it.
	ProtocolMQTT5 ProtocolVersion = 5
)

// Name returns the protocol name carried in the CONNECT variable header.
func (v ProtocolVersion) Name() string {
	if v == ProtocolMQTT31 {
		return "MQIsdp"
	}
	return "MQTT"
}

// String returns the version as commonly written.
func (v ProtocolVersion) String() string {
	switch v {
	case ProtocolMQTT31:
		return "3.1"
	case ProtocolMQTT311:
		return "3.1.1"
	case ProtocolMQTT5:
		return "5"
	default:
		return fmt.Sprintf("level %d", byte(v))
	}
}

// ParseProtocolVersion parses "3.1" or "3.1.1". MQTT 5 is refused since
// the bundled transport only frames 3.1/3.1.1 packets.
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	switch s {
	case "3.1":
		return ProtocolMQTT31, nil
	case "3.1.1", "":
		return ProtocolMQTT311, nil
	case "5", "5.0":
		return 0, fmt.Errorf("protocol version %q: %w", s, ErrUnsupportedProtocolVersion)
	default:
		return 0, fmt.Errorf("unsupported protocol version %q", s)
	}
}
