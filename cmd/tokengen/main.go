// Command tokengen issues and inspects admin tokens for local work against the
// audit API. Without -key it uses the development signing key, which a
// production server refuses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	jwttoken "workspace-audit/internal/jwt_token"
)

const usage = `tokengen issues admin tokens for the workspace audit API.

Usage:
  tokengen admin  [-admin-id ID] [-roles admin,auditor,compliance] [-ttl 15m] [-json]
  tokengen verify [-key K] [-issuer I] TOKEN

Examples:
  tokengen admin
  tokengen admin -admin-id ops-42 -roles admin,compliance
  curl -H "Authorization: Bearer $(tokengen admin)" localhost:8080/admin/audit/events
`

type keyFlags struct {
	key    string
	issuer string
}

func (k *keyFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&k.key, "key", "", "Signing key; the development key when empty")
	fs.StringVar(&k.issuer, "issuer", "", "Issuer claim; must match JWT_ISSUER when the server sets it")
}

func (k *keyFlags) service(ttl time.Duration) *jwttoken.JWTService {
	key := k.key
	if key == "" {
		key = jwttoken.DevSigningKey
	}
	return jwttoken.NewJWTService(key, k.issuer, ttl)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "admin":
		err = runAdmin(os.Args[2:], os.Stdout)
	case "verify":
		err = runVerify(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}
}

func runAdmin(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	var keys keyFlags
	keys.bind(fs)
	adminID := fs.String("admin-id", "", "Admin ID; generated when empty")
	sessionID := fs.String("session-id", "", "Session ID; generated when empty")
	roles := fs.String("roles", "auditor", "Comma-separated roles")
	ttl := fs.Duration("ttl", 15*time.Minute, "Token lifetime")
	asJSON := fs.Bool("json", false, "Print token and claims as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *adminID == "" {
		*adminID = "admin-" + uuid.NewString()[:8]
	}
	if *sessionID == "" {
		*sessionID = uuid.NewString()
	}
	roleList := splitRoles(*roles)

	token, err := keys.service(*ttl).GenerateAdminToken(context.Background(), *adminID, *sessionID, roleList)
	if err != nil {
		return err
	}
	if !*asJSON {
		_, err = fmt.Fprintln(out, token)
		return err
	}
	return writeJSON(out, map[string]any{
		"token":      token,
		"expires_in": ttl.String(),
		"dev_key":    keys.key == "",
		"claims": map[string]any{
			"sub":   *adminID,
			"sid":   *sessionID,
			"roles": roleList,
			"iss":   keys.issuer,
		},
	})
}

func runVerify(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	var keys keyFlags
	keys.bind(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("verify takes exactly one token")
	}

	p, err := jwttoken.NewVerifier(keys.service(0)).VerifyAdminToken(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	return writeJSON(out, p)
}

func splitRoles(roles string) []string {
	var out []string
	for r := range strings.SplitSeq(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
