// Command authcore-keygen provisions the RSA keypair authcore loads at startup.
//
//	authcore-keygen ensure [-private path] [-public path] [-bits n]
//	authcore-keygen derive [-private path] [-public path]
//	authcore-keygen check  [-private path] [-public path]
//
// Paths default to AUTHCORE_PRIVATE_KEY_PATH / AUTHCORE_PUBLIC_KEY_PATH, then to
// keys/private.pem and keys/public.pem.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bugforge/authcore"
	"github.com/bugforge/authcore/keys"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	cfg, err := authcore.ConfigFromEnv(nil)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}

	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	privatePath := fs.String("private", cfg.Keys.PrivateKeyPath, "private key path (PEM)")
	publicPath := fs.String("public", cfg.Keys.PublicKeyPath, "public key path (PEM)")
	bits := fs.Int("bits", cfg.Keys.RSABits, "RSA modulus size for new keys")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))

	switch cmd {
	case "ensure":
		res, err := keys.Ensure(*privatePath, *publicPath, *bits)
		if err != nil {
			fmt.Fprintf(stderr, "ensure: %v\n", err)
			return 1
		}
		switch {
		case res.GeneratedPrivate:
			fmt.Fprintf(stdout, "generated %s and %s\n", *privatePath, *publicPath)
		case res.WrotePublic:
			fmt.Fprintf(stdout, "derived %s from %s\n", *publicPath, *privatePath)
		default:
			fmt.Fprintln(stdout, "keys already present")
		}
	case "derive":
		if err := keys.DerivePublic(*privatePath, *publicPath); err != nil {
			fmt.Fprintf(stderr, "derive: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "derived %s from %s\n", *publicPath, *privatePath)
	case "check":
		kp, err := keys.NewLoader(keys.ModeStrict, logger).Load(*privatePath, *publicPath)
		if err != nil {
			fmt.Fprintf(stderr, "check: %s: %v\n", authcore.Reason(err), err)
			return 1
		}
		fmt.Fprintf(stdout, "ok: %d-bit RSA keypair\n", kp.Bits())
	default:
		usage(stderr)
		return 2
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: authcore-keygen ensure|derive|check [-private path] [-public path] [-bits n]")
}
