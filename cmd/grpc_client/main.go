package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"chat-sanitizer/internal/grpcclient"
	"chat-sanitizer/internal/platform/config"

	"github.com/spf13/pflag"
)

func main() {
	conversationID := pflag.StringP("conversation", "c", "", "對話 ID")
	mode := pflag.StringP("mode", "m", "scan", "scan、clean 或 delete")
	actor := pflag.String("actor", "", "操作者 ID")
	dryRun := pflag.Bool("dry-run", false, "只回報不寫入")
	confirm := pflag.Bool("yes", false, "確認執行 clean 或 delete")
	listRuns := pflag.Bool("runs", false, "列出最近的執行紀錄")
	pflag.Parse()

	// 連接位址與 TLS 從配置讀取
	if err := config.Load(); err != nil {
		log.Fatalf("載入設定失敗: %v", err)
	}

	conn, err := grpcclient.GetConnection()
	if err != nil {
		log.Fatalf("連接失敗: %v", err)
	}
	defer func() { _ = grpcclient.CloseConnection() }()

	client := grpcclient.NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out interface{}
	if *listRuns {
		out, err = client.ListRuns(ctx)
	} else {
		out, err = client.Sanitize(ctx, grpcclient.SanitizeParams{
			ConversationID: *conversationID,
			Mode:           *mode,
			ActorID:        *actor,
			DryRun:         *dryRun,
			Confirm:        *confirm,
		})
	}
	if err != nil {
		log.Fatalf("呼叫失敗: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "輸出失敗: %v\n", err)
		os.Exit(1)
	}
}
