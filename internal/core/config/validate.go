package config

import (
	"fmt"
	"net"
	"net/url"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration including
// address syntax, origin patterns, and file accessibility. The configPath argument
// specifies the config file location to validate (empty string skips config file check).
// This calls Validate() first for basic structural validation, then adds I/O checks.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		criterio.Run("server.addr", c.Server.Addr, validListenAddr),
		c.validateOrigins(),
		c.validateDispatchURL(),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Drafts.AutosaveDelay == 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Drafts",
			Item:     "autosave_delay",
			Message:  "every keystroke is persisted; consider a small debounce",
		})
	}

	if c.Server.Pprof {
		if host, _, err := net.SplitHostPort(c.Server.Addr); err == nil && !isLoopback(host) {
			warnings = append(warnings, ValidationWarning{
				Category: "Server",
				Item:     "pprof",
				Message:  "profiling endpoints exposed on a non-loopback address",
			})
		}
	}

	return warnings
}

// validateFileAccess checks the config file and data directory.
func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

func validListenAddr(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	return nil
}

// validateOrigins checks that every allowed origin is a valid glob.
func (c *Config) validateOrigins() error {
	var errs criterio.FieldErrorsBuilder
	for i, pattern := range c.Server.AllowedOrigins {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append(fmt.Sprintf("server.allowed_origins[%d]", i), fmt.Errorf("invalid pattern %q", pattern))
		}
	}
	return errs.ToError()
}

func (c *Config) validateDispatchURL() error {
	if c.Dispatch.Mode != DispatchWebhook {
		return nil
	}

	u, err := url.Parse(c.Dispatch.URL)
	if err != nil {
		return criterio.NewFieldErrors("dispatch.url", fmt.Errorf("invalid url: %w", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return criterio.NewFieldErrors("dispatch.url", fmt.Errorf("scheme must be http or https, got %q", u.Scheme))
	}
	if u.Host == "" {
		return criterio.NewFieldErrors("dispatch.url", fmt.Errorf("missing host"))
	}
	return nil
}

// OriginAllowed reports whether origin matches one of the allowed patterns.
func (c *Config) OriginAllowed(origin string) bool {
	for _, pattern := range c.Server.AllowedOrigins {
		if ok, _ := doublestar.Match(pattern, origin); ok {
			return true
		}
	}
	return false
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
