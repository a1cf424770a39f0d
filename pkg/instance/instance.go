package instance

import (
	"os"
	"strings"

	"github.com/angelmondragon/kiggyshop-backend/pkg/env"
)

// ID names the running process in logs. Heroku dynos report DYNO; anything
// else can set KIGGYSHOP_INSTANCE_ID.
func ID(serviceKind string) string {
	if id := strings.TrimSpace(os.Getenv("DYNO")); id != "" {
		return id
	}
	return env.Get("KIGGYSHOP_INSTANCE_ID", serviceKind+"-local")
}
