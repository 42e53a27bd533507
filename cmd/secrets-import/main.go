// secrets-import 把 .env 里的密钥写进加密的 Badger 库，server 启动时通过
// CARRIERDESK_SECRETS_DIR + CARRIERDESK_MASTER_KEY 读取。
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/carrierdesk/carrierdesk/pkg/secretstore"
)

// 默认只导入这些；-all 导入文件里的全部变量
var defaultKeys = []string{"API_KEY", "FMCSA_API_KEY"}

func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		dbPath    = flag.String("badger", getenv("CARRIERDESK_SECRETS_DIR", "data/secrets.badger"), "badger secrets db path")
		masterKey = flag.String("master-key", getenv("CARRIERDESK_MASTER_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		all       = flag.Bool("all", false, "import every variable, not just the known secrets")
		dryRun    = flag.Bool("dry-run", false, "print the keys that would be written")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*masterKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("master key is required: set CARRIERDESK_MASTER_KEY or pass -master-key"))
	}

	kv, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(err)
	}
	names := selectKeys(kv, *all)
	if len(names) == 0 {
		fatal(fmt.Errorf("no secrets found in %s", *inPath))
	}
	if *dryRun {
		for _, k := range names {
			fmt.Println(secretstore.EnvPrefix + k)
		}
		return
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{Path: *dbPath, EncryptionKey: keyBytes})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	for _, k := range names {
		if err := ss.SetString(secretstore.EnvPrefix+k, kv[k]); err != nil {
			fatal(err)
		}
	}
	fmt.Fprintf(os.Stderr, "已导入 %d 项到 badger：%s\n", len(names), *dbPath)
}

func selectKeys(kv map[string]string, all bool) []string {
	var out []string
	if all {
		for k, v := range kv {
			if strings.TrimSpace(v) != "" {
				out = append(out, k)
			}
		}
		sort.Strings(out)
		return out
	}
	for _, k := range defaultKeys {
		if strings.TrimSpace(kv[k]) != "" {
			out = append(out, k)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
