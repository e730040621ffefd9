package mqttclient

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidTopicName   = errors.New("invalid topic name")
	ErrInvalidTopicFilter = errors.New("invalid topic filter")
	ErrEmptyTopic         = errors.New("topic cannot be empty")
)

const (
	topicSeparator      = '/'
	singleLevelWildcard = '+'
	multiLevelWildcard  = '#'
	reservedTopicPrefix = '$'
)

// ValidateTopicName validates a topic name used in PUBLISH.
// Topic names cannot contain wildcards and must be valid UTF-8.
// MQTT 3.1.1 spec: Section 4.7.3
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	if !utf8.ValidString(topic) {
		return ErrInvalidTopicName
	}

	for _, r := range topic {
		if r == 0 || r == singleLevelWildcard || r == multiLevelWildcard {
			return ErrInvalidTopicName
		}
	}

	return nil
}

// ValidateTopicFilter validates a subscription filter.
// MQTT 3.1.1 spec: Section 4.7.1
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrEmptyTopic
	}

	if !utf8.ValidString(filter) || strings.ContainsRune(filter, 0) {
		return ErrInvalidTopicFilter
	}

	rest := filter
	for {
		level, tail, more := strings.Cut(rest, string(topicSeparator))

		if strings.ContainsRune(level, singleLevelWildcard) && level != string(singleLevelWildcard) {
			return ErrInvalidTopicFilter
		}

		if strings.ContainsRune(level, multiLevelWildcard) {
			// '#' must occupy the whole last level
			if level != string(multiLevelWildcard) || more {
				return ErrInvalidTopicFilter
			}
		}

		if !more {
			return nil
		}
		rest = tail
	}
}

// TopicMatch reports whether a topic name matches a subscription filter.
//
// '+' matches exactly one level, '#' matches the remaining levels including
// none, so "sport/#" matches "sport". Topics starting with '$' never match a
// filter whose first level is a wildcard.
func TopicMatch(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}

	if IsReservedTopic(topic) {
		if filter[0] == singleLevelWildcard || filter[0] == multiLevelWildcard {
			return false
		}
	}

	return matchLevels(filter, topic)
}

// matchLevels walks filter and topic level by level without allocating.
// Empty levels ("a//b", trailing "/") are real levels and match '+'.
func matchLevels(filter, topic string) bool {
	for {
		flevel, frest, fmore := strings.Cut(filter, string(topicSeparator))

		if flevel == string(multiLevelWildcard) {
			return true
		}

		tlevel, trest, tmore := strings.Cut(topic, string(topicSeparator))

		if flevel != string(singleLevelWildcard) && flevel != tlevel {
			return false
		}

		switch {
		case !fmore && !tmore:
			return true
		case !tmore:
			// topic exhausted; only a trailing "/#" can still match
			return frest == string(multiLevelWildcard)
		case !fmore:
			return false
		}

		filter, topic = frest, trest
	}
}

// IsReservedTopic returns true for topics beginning with '$', such as $SYS.
func IsReservedTopic(topic string) bool {
	return topic != "" && topic[0] == reservedTopicPrefix
}

