package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"time"
)

// Config holds the call engine configuration
type Config struct {
	// SIP settings
	Port          int
	BindAddr      string // Address to bind for listening
	AdvertiseAddr string // Address to advertise in SIP headers
	User          string // Local user part of the SIP identity
	LogLevel      string

	// Conference relay settings
	RelayURL     string // WebSocket URL of the conference relay
	RelayAddress string // Logical relay address channel requests are sent to
	ReplyTimeout time.Duration

	// Call policy
	MandatoryEncryption bool // Reject inbound offers without encryption
	AutoAnswer          bool // Answer every inbound call automatically

	// Status API
	APIAddr string
}

// Load loads configuration from command line flags and environment variables
func Load() *Config {
	return load(flag.CommandLine, os.Args[1:])
}

func load(fs *flag.FlagSet, args []string) *Config {
	cfg := &Config{}

	fs.IntVar(&cfg.Port, "port", 5060, "SIP listening port")
	fs.StringVar(&cfg.BindAddr, "bind", "0.0.0.0", "SIP bind address")
	fs.StringVar(&cfg.AdvertiseAddr, "advertise", "", "Address to advertise in SIP headers (auto-detected if not set)")
	fs.StringVar(&cfg.User, "user", "relaycall", "Local user part of the SIP identity")
	fs.StringVar(&cfg.LogLevel, "loglevel", "debug", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.RelayURL, "relay-url", "", "Conference relay WebSocket URL (empty disables relay mediation)")
	fs.StringVar(&cfg.RelayAddress, "relay-address", "", "Logical conference relay address")
	fs.DurationVar(&cfg.ReplyTimeout, "reply-timeout", 15*time.Second, "Relay reply timeout")
	fs.BoolVar(&cfg.MandatoryEncryption, "mandatory-encryption", false, "Reject inbound offers that advertise no encryption")
	fs.BoolVar(&cfg.AutoAnswer, "auto-answer", false, "Answer every inbound call automatically")
	fs.StringVar(&cfg.APIAddr, "api", "0.0.0.0:8080", "Status API listen address")

	fs.Parse(args)

	// Override with environment variables if set
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if bind := os.Getenv("BIND"); bind != "" {
		cfg.BindAddr = bind
	}
	if advertise := os.Getenv("ADVERTISE"); advertise != "" {
		cfg.AdvertiseAddr = advertise
	}
	// Validate and fallback to auto-detection if invalid
	if cfg.AdvertiseAddr == "" || !isValidAddress(cfg.AdvertiseAddr) {
		cfg.AdvertiseAddr = getPrimaryInterfaceIP()
	}
	if user := os.Getenv("USER_IDENTITY"); user != "" {
		cfg.User = user
	}
	if loglevel := os.Getenv("LOGLEVEL"); loglevel != "" {
		cfg.LogLevel = loglevel
	}
	if relayURL := os.Getenv("RELAY_URL"); relayURL != "" {
		cfg.RelayURL = relayURL
	}
	if relayAddr := os.Getenv("RELAY_ADDRESS"); relayAddr != "" {
		cfg.RelayAddress = relayAddr
	}
	if timeout := os.Getenv("REPLY_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.ReplyTimeout = d
		}
	}
	if enc := os.Getenv("MANDATORY_ENCRYPTION"); enc != "" {
		if b, err := strconv.ParseBool(enc); err == nil {
			cfg.MandatoryEncryption = b
		}
	}
	if aa := os.Getenv("AUTO_ANSWER"); aa != "" {
		if b, err := strconv.ParseBool(aa); err == nil {
			cfg.AutoAnswer = b
		}
	}
	if api := os.Getenv("API_ADDR"); api != "" {
		cfg.APIAddr = api
	}

	return cfg
}

// LocalAddress returns the SIP identity advertised to peers.
func (c *Config) LocalAddress() string {
	return "sip:" + c.User + "@" + net.JoinHostPort(c.AdvertiseAddr, strconv.Itoa(c.Port))
}

// isValidAddress checks if the address is a valid IP or resolvable hostname
func isValidAddress(addr string) bool {
	if ip := net.ParseIP(addr); ip != nil {
		return true
	}
	if ips, err := net.LookupIP(addr); err == nil && len(ips) > 0 {
		return true
	}
	return false
}

// getPrimaryInterfaceIP detects the primary network interface IP address
func getPrimaryInterfaceIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}

	return "127.0.0.1"
}
