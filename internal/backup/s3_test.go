package backup

import (
	"strings"
	"testing"
)

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{name: "bucket only", raw: "s3://dash-backups", wantBkt: "dash-backups"},
		{name: "bucket with prefix", raw: "s3://dash-backups/canopy/prod/", wantBkt: "dash-backups", wantPre: "canopy/prod"},
		{name: "invalid scheme", raw: "https://dash-backups/canopy", wantErr: true, errSubstr: "s3:// scheme"},
		{name: "missing bucket", raw: "s3:///canopy", wantErr: true, errSubstr: "missing bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt || gotPre != tt.wantPre {
				t.Fatalf("got (%q, %q), want (%q, %q)", gotBkt, gotPre, tt.wantBkt, tt.wantPre)
			}
		})
	}
}

func TestNewS3Uploader_MissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(S3Config{BucketURL: "s3://dash-backups/canopy", Endpoint: "s3.amazonaws.com", UseSSL: true})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestS3UploaderArgs(t *testing.T) {
	t.Parallel()

	u := &S3Uploader{
		bucket:    "dash-backups",
		keyPrefix: "canopy",
		cfg: S3Config{
			Region:      "eu-west-1",
			Endpoint:    "minio.local:9000",
			ContentType: "application/octet-stream",
		},
	}
	got := strings.Join(u.args("/var/backups/canopy-20260101-000000.000000.duckdb"), " ")
	for _, want := range []string{
		"s3://dash-backups/canopy/canopy-20260101-000000.000000.duckdb",
		"--region eu-west-1",
		"--content-type application/octet-stream",
		"--endpoint-url http://minio.local:9000",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                       "",
		"https://s3.example.com": "https://s3.example.com",
		"s3.example.com":         "https://s3.example.com",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in, true); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
	if got := normalizeEndpoint("minio:9000", false); got != "http://minio:9000" {
		t.Errorf("insecure endpoint = %q", got)
	}
}
