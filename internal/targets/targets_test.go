package targets

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ring-scanner/internal/types"
)

func TestParsePortsMixedSpec(t *testing.T) {
	ports, err := ParsePorts("80,443,8000-8100")
	if err != nil {
		t.Fatalf("ParsePorts returned error: %v", err)
	}
	if len(ports) != 103 {
		t.Fatalf("expected 103 ports, got %d", len(ports))
	}
	if ports[0] != 80 || ports[1] != 443 {
		t.Fatalf("expected 80,443 first, got %v", ports[:2])
	}
	for i, p := range ports[2:] {
		if want := uint16(8000 + i); p != want {
			t.Fatalf("ports[%d] = %d, want %d", i+2, p, want)
		}
	}
}

func TestParsePorts(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []uint16
		wantErr bool
	}{
		{name: "single", spec: "443", want: []uint16{443}},
		{name: "duplicates kept", spec: "22,22", want: []uint16{22, 22}},
		{name: "single element range", spec: "9-9", want: []uint16{9}},
		{name: "whitespace", spec: " 80 , 81-82 ", want: []uint16{80, 81, 82}},
		{name: "bounds", spec: "1,65535", want: []uint16{1, 65535}},
		{name: "empty spec", spec: "", want: nil},
		{name: "zero", spec: "0", wantErr: true},
		{name: "too large", spec: "65536", wantErr: true},
		{name: "non numeric", spec: "http", wantErr: true},
		{name: "reversed range", spec: "100-90", wantErr: true},
		{name: "open range", spec: "100-", wantErr: true},
		{name: "double dash", spec: "1-2-3", wantErr: true},
		{name: "empty token", spec: "80,,443", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePorts(tt.spec)
			if tt.wantErr {
				var cfgErr *types.ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected ConfigError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParsePorts(%q) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestExpandOrdering(t *testing.T) {
	got, err := Expand([]string{"a.example", "b.example"}, "443,80", true)
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}

	want := []types.ProbeTarget{
		{Host: "a.example", Port: 443, Protocol: types.ProtocolTCP},
		{Host: "a.example", Port: 80, Protocol: types.ProtocolTCP},
		{Host: "a.example", Protocol: types.ProtocolICMP},
		{Host: "b.example", Port: 443, Protocol: types.ProtocolTCP},
		{Host: "b.example", Port: 80, Protocol: types.ProtocolTCP},
		{Host: "b.example", Protocol: types.ProtocolICMP},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand = %+v, want %+v", got, want)
	}
}

func TestExpandErrors(t *testing.T) {
	tests := []struct {
		name  string
		hosts []string
		spec  string
		icmp  bool
	}{
		{name: "no hosts", hosts: nil, spec: "80"},
		{name: "bad port", hosts: []string{"localhost"}, spec: "abc"},
		{name: "no ports and no ping", hosts: []string{"localhost"}, spec: ""},
		{name: "empty host", hosts: []string{" "}, spec: "80"},
		{name: "too many targets", hosts: []string{"10.0.0.0/16"}, spec: "1-65535"},
		{name: "too many targets across tokens", hosts: []string{"10.0.0.0/16", "10.1.0.0/16"}, spec: "1-9", icmp: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Expand(tt.hosts, tt.spec, tt.icmp)
			var cfgErr *types.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestExpandPingOnly(t *testing.T) {
	got, err := Expand([]string{"127.0.0.1"}, "", true)
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if len(got) != 1 || got[0].Protocol != types.ProtocolICMP || got[0].Port != 0 {
		t.Fatalf("unexpected targets: %+v", got)
	}
}

func TestExpandHosts(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		want    []string
		wantErr bool
	}{
		{name: "plain", tokens: []string{"example.com", "10.0.0.1"}, want: []string{"example.com", "10.0.0.1"}},
		{name: "hyphenated hostname", tokens: []string{"my-host.example.com"}, want: []string{"my-host.example.com"}},
		{name: "octet range", tokens: []string{"192.168.1.1-3"}, want: []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"}},
		{name: "cidr /30", tokens: []string{"10.0.0.0/30"}, want: []string{"10.0.0.1", "10.0.0.2"}},
		{name: "cidr /31", tokens: []string{"10.0.0.0/31"}, want: []string{"10.0.0.0", "10.0.0.1"}},
		{name: "cidr /32", tokens: []string{"10.0.0.7/32"}, want: []string{"10.0.0.7"}},
		{name: "reversed octet range", tokens: []string{"192.168.1.9-3"}, wantErr: true},
		{name: "octet overflow", tokens: []string{"192.168.1.1-300"}, wantErr: true},
		{name: "bad cidr", tokens: []string{"10.0.0.0/33"}, wantErr: true},
		{name: "ipv6 cidr", tokens: []string{"fd00::/120"}, wantErr: true},
		{name: "cidr too large", tokens: []string{"10.0.0.0/8"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandHosts(tt.tokens)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ExpandHosts(%v) = %v, want %v", tt.tokens, got, tt.want)
			}
		})
	}
}
