package config

import (
	"strings"
	"testing"
)

func TestPostgresDSNFromURL(t *testing.T) {
	p := PostgresConfig{URL: "postgres://u:p@db:5432/labs?sslmode=require", Host: "ignored"}
	dsn, err := p.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if dsn != p.URL {
		t.Errorf("explicit url must win, got %q", dsn)
	}
}

func TestPostgresDSNAssembled(t *testing.T) {
	p := PostgresConfig{Host: "db", User: "lab", Password: "secret", DBName: "labassist"}
	dsn, err := p.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	want := "postgres://lab:secret@db:5432/labassist?sslmode=disable"
	if dsn != want {
		t.Errorf("dsn = %q, want %q", dsn, want)
	}
}

func TestPostgresDSNRequiresHostAndName(t *testing.T) {
	_, err := PostgresConfig{Host: "db"}.DSN()
	if err == nil || !strings.Contains(err.Error(), "postgres not configured") {
		t.Errorf("expected configuration error, got %v", err)
	}
}
