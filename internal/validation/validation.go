package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"backlinks/internal/fingerprint"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Struct validates v against its `validate` tags and returns a readable
// error naming every failing field.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "hostname_rfc1123":
		return field + " must be a valid hostname"
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

// NormalizeHost turns user input ("https://www.Example.com/path",
// "example.com.") into the bare lowercase host that is audited.
func NormalizeHost(input string) string {
	return fingerprint.Host(input)
}

// ValidateHost checks that host is a public domain name that can be
// audited: a valid multi-label hostname, not an IP address.
func ValidateHost(host string) (bool, string) {
	if host == "" {
		return false, "Host is required"
	}
	if len(host) > 253 {
		return false, "Host is too long"
	}
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return false, "Host points to a private or reserved IP address"
		}
		return false, "Host must be a domain name, not an IP address"
	}
	if err := instance().Var(host, "hostname_rfc1123"); err != nil {
		return false, "Host must be a valid hostname"
	}
	if fingerprint.TLD(host) == "" {
		return false, "Host must include a top-level domain"
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return false, "Host must be publicly reachable"
	}
	return true, ""
}

// ValidateURL checks if a URL is valid and uses an allowed scheme (http/https only).
func ValidateURL(urlStr string) (bool, string) {
	if urlStr == "" {
		return false, "URL is required"
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return false, "Invalid URL format"
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false, "URL must use http:// or https:// scheme"
	}

	if u.Host == "" {
		return false, "URL must have a valid host"
	}

	return true, ""
}

// IsPrivateIP checks if an IP address is in a private/reserved range.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	// Cloud metadata endpoints
	for _, meta := range []string{"169.254.169.254", "168.63.129.16"} {
		if ip.Equal(net.ParseIP(meta)) {
			return true
		}
	}
	return false
}
