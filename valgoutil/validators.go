package valgoutil

import (
	"net"
	"net/url"

	"github.com/cohesivestack/valgo"
)

func HostPortValidator(hostPort string, nameAndTitle ...string) valgo.Validator {
	return valgo.String(hostPort, nameAndTitle...).Passing(func(hp string) bool {
		return isValidHostPort(hp)
	}, "must be a network address of the form 'host:port'")
}

// PostgresURLValidator accepts postgres:// and postgresql:// connection URLs.
func PostgresURLValidator(rawURL string, nameAndTitle ...string) valgo.Validator {
	return valgo.String(rawURL, nameAndTitle...).Passing(func(rawURL string) bool {
		return isValidURL(rawURL, "postgres", "postgresql")
	}, "must be a postgres connection URL")
}

// OneOfValidator accepts exactly one of the allowed values.
func OneOfValidator(value string, allowed []string, nameAndTitle ...string) valgo.Validator {
	return valgo.String(value, nameAndTitle...).InSlice(allowed, "must be one of {{values}}")
}

func isValidHostPort(hostPort string) bool {
	_, _, err := net.SplitHostPort(hostPort)
	return err == nil
}

func isValidURL(rawURL string, schemes ...string) bool {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	for _, scheme := range schemes {
		if parsedURL.Scheme == scheme {
			return parsedURL.Host != ""
		}
	}
	return false
}
