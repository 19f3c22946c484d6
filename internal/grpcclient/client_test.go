package grpcclient

import (
	"context"
	"io"
	"net"
	"os"
	"strings"
	"testing"

	sanitizergrpc "chat-sanitizer/internal/grpc"
	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/sanitizer"
	"chat-sanitizer/internal/storage/database/memstore"
	"chat-sanitizer/internal/storage/database/message"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testConversationID = "conv-1"

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestClient(t *testing.T) (*Client, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	err := store.Insert(context.Background(),
		&message.Message{ID: "m1", ConversationID: testConversationID, Text: "good morning"},
		&message.Message{ID: "m2", ConversationID: testConversationID, Text: strings.Repeat("s", 25)},
	)
	if err != nil {
		t.Fatal(err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := sanitizergrpc.NewServer(sanitizer.NewService(store, sanitizer.Options{}), true)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("創建 gRPC 客戶端失敗: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })

	return NewClient(cc), store
}

// TestClient_SanitizeAndListRuns 掃描、清理後查詢執行紀錄
func TestClient_SanitizeAndListRuns(t *testing.T) {
	client, store := newTestClient(t)
	ctx := context.Background()

	res, err := client.Sanitize(ctx, SanitizeParams{ConversationID: testConversationID})
	if err != nil {
		t.Fatalf("掃描失敗: %v", err)
	}
	if res.Mode != sanitizer.ModeScan || res.Scanned != 2 || res.Corrupted != 1 {
		t.Errorf("unexpected scan result: %+v", res.Summary)
	}
	if len(res.Messages) != 1 || res.Messages[0].ID != "m2" {
		t.Fatalf("messages = %+v", res.Messages)
	}

	res, err = client.Sanitize(ctx, SanitizeParams{
		ConversationID: testConversationID,
		Mode:           "clean",
		ActorID:        "cli",
		Confirm:        true,
	})
	if err != nil {
		t.Fatalf("清理失敗: %v", err)
	}
	if res.Cleaned != 1 || len(res.AffectedIDs) != 1 || res.AffectedIDs[0] != "m2" {
		t.Errorf("cleaned = %d, affected = %v", res.Cleaned, res.AffectedIDs)
	}
	if m, _ := store.Get("m2"); !m.IsCorrupted {
		t.Error("m2 應該被標記為損壞")
	}

	runs, err := client.ListRuns(ctx)
	if err != nil {
		t.Fatalf("查詢執行紀錄失敗: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].Mode != sanitizer.ModeClean || runs[0].ActorID != "cli" {
		t.Errorf("newest run = %+v", runs[0])
	}
}

func TestClient_SanitizeErrors(t *testing.T) {
	client, store := newTestClient(t)

	_, err := client.Sanitize(context.Background(), SanitizeParams{ConversationID: testConversationID, Mode: "delete"})
	if code := status.Code(err); code != codes.FailedPrecondition {
		t.Errorf("未確認的刪除: code = %v", code)
	}

	_, err = client.Sanitize(context.Background(), SanitizeParams{Mode: "scan"})
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("缺少對話 ID: code = %v", code)
	}
	if store.Writes() != 0 {
		t.Errorf("writes = %d, want 0", store.Writes())
	}
}

// TestGetConnection_RequiresConfig 測試單例連接
func TestGetConnection_RequiresConfig(t *testing.T) {
	if err := CloseConnection(); err != nil {
		t.Fatal(err)
	}
	if IsConnected() {
		t.Fatal("關閉後不應處於連接狀態")
	}

	cfg := config.Default()
	if err := config.Load(cfg); err != nil {
		t.Fatal(err)
	}

	conn, err := GetConnection()
	if err != nil {
		t.Fatalf("獲取連接失敗: %v", err)
	}
	if conn == nil || !IsConnected() {
		t.Fatal("應該建立連接")
	}

	again, err := GetConnection()
	if err != nil {
		t.Fatal(err)
	}
	if again != conn {
		t.Error("應該重用同一個連接")
	}

	if err := CloseConnection(); err != nil {
		t.Fatal(err)
	}
	if IsConnected() {
		t.Error("關閉後不應處於連接狀態")
	}
}

func TestDialWithTLS_MissingCA(t *testing.T) {
	if _, err := dialWithTLS("localhost:8081", config.TLSConfig{Enabled: true, CAFile: "does-not-exist.pem"}); err == nil {
		t.Error("缺少 CA 檔案應該返回錯誤")
	}
}
