package db

import (
	"context"
	"net"
	"strings"
	"testing"
)

func TestOpenUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	_, err = Open(context.Background(), "postgres://canto:canto@"+addr+"/canto?sslmode=disable")
	if err == nil {
		t.Fatal("Expected error for unreachable database")
	}
	if !strings.Contains(err.Error(), "failed to ping database") {
		t.Errorf("Unexpected error: %v", err)
	}
}
