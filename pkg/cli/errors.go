package cli

import "errors"

var (
	errUnknownOutput   = errors.New("unknown output format")
	errInvalidRange    = errors.New("time range must be daily, weekly or monthly")
	errInvalidProtocol = errors.New("protocol must be http, https, socks4 or socks5")
	errInvalidAddress  = errors.New("address must be host:port")
	errEmptyPatch      = errors.New("no fields to update")
	errEmptyImport     = errors.New("import file contains no proxies")
	errNotInitialized  = errors.New("console not initialized")
	errInvalidInterval = errors.New("refresh interval must be positive")
)
