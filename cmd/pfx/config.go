package main

import (
	"encoding/asn1"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/gematik/zero-lab/go/pfx"
	"github.com/gematik/zero-lab/go/pfx/kdf"
)

// Profile selects the protection of files written by create. Empty fields
// keep the value of the preset.
type Profile struct {
	Preset        string `mapstructure:"preset" yaml:"preset" validate:"required,oneof=modern legacy"`
	Encryption    string `mapstructure:"encryption" yaml:"encryption" validate:"omitempty,oneof=pbes2 pbe-sha1-3des pbe-sha1-2des none"`
	Cipher        string `mapstructure:"cipher" yaml:"cipher" validate:"omitempty,oneof=aes-128-cbc aes-192-cbc aes-256-cbc des-ede3-cbc"`
	PRF           string `mapstructure:"prf" yaml:"prf" validate:"omitempty,hashname"`
	Iterations    int    `mapstructure:"iterations" yaml:"iterations" validate:"gte=0,lte=10000000"`
	SaltLength    int    `mapstructure:"salt_length" yaml:"salt_length" validate:"omitempty,gte=8,lte=64"`
	MacDigest     string `mapstructure:"mac_digest" yaml:"mac_digest" validate:"omitempty,hashname"`
	MacIterations int    `mapstructure:"mac_iterations" yaml:"mac_iterations" validate:"gte=0,lte=10000000"`
	NoMac         bool   `mapstructure:"no_mac" yaml:"no_mac"`
	PlainCerts    bool   `mapstructure:"plain_certs" yaml:"plain_certs"`
}

var profileKeys = map[string]any{
	"profile.preset":         "modern",
	"profile.encryption":     "",
	"profile.cipher":         "",
	"profile.prf":            "",
	"profile.iterations":     0,
	"profile.salt_length":    0,
	"profile.mac_digest":     "",
	"profile.mac_iterations": 0,
	"profile.no_mac":         false,
	"profile.plain_certs":    false,
}

// setProfileDefaults registers every profile key so that PFX_PROFILE_*
// environment variables reach Unmarshal.
func setProfileDefaults(v *viper.Viper) {
	for k, def := range profileKeys {
		v.SetDefault(k, def)
	}
}

var ciphers = map[string]asn1.ObjectIdentifier{
	"aes-128-cbc":  pfx.OIDAes128CBC,
	"aes-192-cbc":  pfx.OIDAes192CBC,
	"aes-256-cbc":  pfx.OIDAes256CBC,
	"des-ede3-cbc": pfx.OIDDESEDE3CBC,
}

func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("yaml")
	})
	validate.RegisterValidation("hashname", func(fl validator.FieldLevel) bool {
		_, ok := kdf.HashByName(fl.Field().String())
		return ok
	})
	return validate
}

// Config is the content of the config file.
type Config struct {
	Profile Profile `mapstructure:"profile" yaml:"profile" validate:"required"`
}

// loadProfile unmarshals and validates the profile section. Unmarshal
// walks all leaf keys, so environment overrides apply per field.
func loadProfile(v *viper.Viper) (*Profile, error) {
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	p := &cfg.Profile
	p.Preset = strings.ToLower(p.Preset)
	if err := newValidator().Struct(p); err != nil {
		return nil, fmt.Errorf("validate profile: %w", err)
	}
	return p, nil
}

// EncodeOptions applies the profile to its preset.
func (p *Profile) EncodeOptions() (*pfx.EncodeOptions, error) {
	var opts *pfx.EncodeOptions
	switch p.Preset {
	case "legacy":
		opts = pfx.LegacyEncodeOptions()
	default:
		opts = pfx.ModernEncodeOptions()
	}

	enc := *opts.KeyEncryption
	switch p.Encryption {
	case "":
	case "pbes2":
		enc.Algorithm = pfx.OIDPBES2
		enc.Cipher = pfx.OIDAes256CBC
		enc.PRF = pfx.OIDHMACSHA256
	case "pbe-sha1-3des":
		enc = pfx.EncryptionOptions{Algorithm: pfx.OIDPBEWithSHAAnd3KeyTripleDESCBC, Iterations: enc.Iterations}
	case "pbe-sha1-2des":
		enc = pfx.EncryptionOptions{Algorithm: pfx.OIDPBEWithSHAAnd2KeyTripleDESCBC, Iterations: enc.Iterations}
	}

	pbes2 := enc.Algorithm.Equal(pfx.OIDPBES2)
	if p.Cipher != "" {
		if !pbes2 {
			return nil, fmt.Errorf("cipher %s requires pbes2 encryption", p.Cipher)
		}
		enc.Cipher = ciphers[p.Cipher]
	}
	if p.PRF != "" {
		if !pbes2 {
			return nil, fmt.Errorf("prf %s requires pbes2 encryption", p.PRF)
		}
		h, _ := kdf.HashByName(p.PRF)
		oid, ok := kdf.HMACOID(h)
		if !ok {
			return nil, fmt.Errorf("no HMAC registered for %s", h)
		}
		enc.PRF = oid
	}
	if p.Iterations != 0 {
		enc.Iterations = p.Iterations
	}
	if p.SaltLength != 0 {
		enc.SaltLength = p.SaltLength
	}

	if p.Encryption == "none" {
		opts.KeyEncryption = nil
		opts.CertEncryption = nil
	} else {
		opts.KeyEncryption = &enc
		opts.CertEncryption = &enc
	}
	if p.PlainCerts {
		opts.CertEncryption = nil
	}

	if p.NoMac {
		opts.Mac = nil
		return opts, nil
	}
	mac := *opts.Mac
	if p.MacDigest != "" {
		h, _ := kdf.HashByName(p.MacDigest)
		oid, ok := kdf.DigestOID(h)
		if !ok {
			return nil, fmt.Errorf("no digest OID registered for %s", h)
		}
		mac.Digest = oid
	}
	if p.MacIterations != 0 {
		mac.Iterations = p.MacIterations
	}
	if p.SaltLength != 0 {
		mac.SaltLength = p.SaltLength
	}
	opts.Mac = &mac
	return opts, nil
}
