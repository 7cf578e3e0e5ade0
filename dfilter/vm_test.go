package dfilter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webRecord() *MapRecord {
	return NewMapRecord().
		SetUint("frame.len", 1514).
		SetDuration("frame.time_delta", 200*time.Millisecond).
		SetTime("frame.time", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)).
		SetEther("eth.src", "00:50:56:c0:00:08").
		SetIP("ip.src", "192.168.1.10").
		SetIP("ip.addr", "192.168.1.10").
		SetIP("ip.addr", "93.184.216.34").
		SetUint("tcp.port", 52100).
		SetUint("tcp.port", 443).
		SetBytes("tcp.payload", []byte("GET /index.html HTTP/1.1")).
		SetBool("tcp.flags.syn", false).
		SetString("http.host", "www.example.com")
}

func runFilter(t *testing.T, input string, rec Record) bool {
	t.Helper()
	f, err := Compile(input, testRegistry())
	require.NoError(t, err)
	return f.Run(rec)
}

func TestFilterRun(t *testing.T) {
	rec := webRecord()

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"equality", `http.host == "www.example.com"`, true},
		{"equality miss", `http.host == "other.org"`, false},
		{"inequality", `http.host != "other.org"`, true},
		{"unquoted string literal", `http.host == www.example.com`, true},
		{"numeric ordering", `frame.len > 1000`, true},
		{"numeric ordering miss", `frame.len < 1000`, false},
		{"existence", `tcp.port`, true},
		{"absent existence", `ipv6.src`, false},
		{"negated absent existence", `not ipv6.src`, true},
		{"existence of false-valued boolean field", `tcp.flags.syn`, true},
		{"negated existence of false-valued boolean field", `not tcp.flags.syn`, false},
		{"pinned existence", `ip.addr#2`, true},
		{"pinned existence out of range", `ip.addr#3`, false},
		{"boolean field", `tcp.flags.syn == false`, true},
		{"boolean field numeric literal", `tcp.flags.syn == 0`, true},
		{"and", `frame.len > 1000 && http.host == "www.example.com"`, true},
		{"and short circuit", `frame.len < 10 && http.host == "www.example.com"`, false},
		{"or", `frame.len < 10 || tcp.port == 443`, true},
		{"or miss", `frame.len < 10 || tcp.port == 21`, false},
		{"not", `not tcp.port == 21`, true},
		{"grouping", `(frame.len < 10 || tcp.port == 443) && http.host contains "example"`, true},
		{"contains string", `http.host contains "example"`, true},
		{"contains miss", `http.host contains "nonesuch"`, false},
		{"contains bytes", `tcp.payload contains "index.html"`, true},
		{"matches", `http.host matches /ex.m.le/`, true},
		{"matches tilde", `http.host ~ /\.com$/`, true},
		{"matches is case sensitive", `http.host matches /EXAMPLE/`, false},
		{"duration compare", `frame.time_delta < 1.5`, true},
		{"time compare", `frame.time > "2024-01-01"`, true},
		{"ether equality", `eth.src == 00:50:56:c0:00:08`, true},
		{"ether equality dash form", `eth.src == 00-50-56-c0-00-08`, true},
		{"bytes dash form", `tcp.payload contains 47-45-54`, true},
		{"comment ignored", `tcp.port /* https */ == 443`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runFilter(t, tt.filter, rec))
		})
	}
}

func TestFilterRunOccurrences(t *testing.T) {
	rec := webRecord()

	t.Run("any occurrence satisfies equality", func(t *testing.T) {
		assert.True(t, runFilter(t, `tcp.port == 443`, rec))
		assert.True(t, runFilter(t, `tcp.port == 52100`, rec))
		assert.False(t, runFilter(t, `tcp.port == 80`, rec))
	})

	t.Run("any semantics make eq and ne both true", func(t *testing.T) {
		// One occurrence equals 443 and another does not, so both filters
		// match this record.
		assert.True(t, runFilter(t, `tcp.port == 443`, rec))
		assert.True(t, runFilter(t, `tcp.port != 443`, rec))
	})

	t.Run("pinned occurrence", func(t *testing.T) {
		assert.True(t, runFilter(t, `ip.addr#1 == 192.168.1.10`, rec))
		assert.False(t, runFilter(t, `ip.addr#1 == 93.184.216.34`, rec))
		assert.True(t, runFilter(t, `ip.addr#2 == 93.184.216.34`, rec))
	})

	t.Run("pinned occurrence out of range", func(t *testing.T) {
		assert.False(t, runFilter(t, `ip.addr#3 == 93.184.216.34`, rec))
	})
}

func TestFilterRunAbsentFields(t *testing.T) {
	rec := webRecord() // has no ipv6.src

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"absent eq", `ipv6.src == 2001:db8::1`, false},
		{"absent ne", `ipv6.src != 2001:db8::1`, false},
		{"absent ordering", `frame.len > 0 && ipv6.src > 2001::`, false},
		{"absent in set", `ipv6.src in {2001:db8::1}`, false},
		{"absent negated comparison", `not ipv6.src == 2001:db8::1`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runFilter(t, tt.filter, rec))
		})
	}
}

func TestFilterRunSets(t *testing.T) {
	rec := webRecord()

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"member", `tcp.port in {80, 443, 8080}`, true},
		{"not a member", `tcp.port in {80, 8080}`, false},
		{"range hit", `tcp.port in {52000..52199}`, true},
		{"range bounds are inclusive", `tcp.port in {443..443}`, true},
		{"range miss", `tcp.port in {1..100}`, false},
		{"empty set never matches", `tcp.port in {}`, false},
		{"subnet members", `ip.src in {10.0.0.0/8, 192.168.0.0/16}`, true},
		{"subnet members miss", `ip.src in {10.0.0.0/8, 172.16.0.0/12}`, false},
		{"negated membership", `not tcp.port in {80, 8080}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runFilter(t, tt.filter, rec))
		})
	}
}

func TestFilterRunSlices(t *testing.T) {
	rec := webRecord()

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"prefix", `eth.src[0:3] == 00:50:56`, true},
		{"prefix miss", `eth.src[0:3] == 00:50:57`, false},
		{"implicit start", `eth.src[:2] == 00:50`, true},
		{"tail", `eth.src[4:] == 00:08`, true},
		{"negative start", `eth.src[-2:] == 00:08`, true},
		{"single byte", `eth.src[3] == c0`, true},
		{"inclusive range", `eth.src[1-3] == 50:56:c0`, true},
		{"payload slice", `tcp.payload[0:3] == "GET"`, true},
		{"clamped overlong slice", `eth.src[0:64] == 00:50:56:c0:00:08`, true},
		{"out of range single byte", `eth.src[9] == ff`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runFilter(t, tt.filter, rec))
		})
	}
}

func TestFilterRunSubnets(t *testing.T) {
	rec := webRecord()

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"cidr equality", `ip.src == 192.168.0.0/16`, true},
		{"cidr equality miss", `ip.src == 10.0.0.0/8`, false},
		{"host equality", `ip.src == 192.168.1.10`, true},
		{"multi occurrence cidr", `ip.addr == 93.184.0.0/16`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runFilter(t, tt.filter, rec))
		})
	}
}

func TestFilterRunFunctions(t *testing.T) {
	rec := webRecord()

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"upper", `upper(http.host) == "WWW.EXAMPLE.COM"`, true},
		{"lower of upper", `lower(upper(http.host)) == "www.example.com"`, true},
		{"len of string", `len(http.host) == 15`, true},
		{"len of payload", `len(tcp.payload) > 20`, true},
		{"count occurrences", `count(ip.addr) == 2`, true},
		{"count absent field", `count(ipv6.src) == 0`, true},
		{"max", `max(tcp.port, frame.len) == 52100`, true},
		{"min", `min(tcp.port, frame.len) == 443`, true},
		{"abs", `abs(frame.len) == 1514`, true},
		{"upper feeds matches", `upper(http.host) matches /EXAMPLE/`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runFilter(t, tt.filter, rec))
		})
	}
}

func TestFilterRunBoundaries(t *testing.T) {
	t.Run("empty pattern matches any string", func(t *testing.T) {
		assert.True(t, runFilter(t, `"" matches //`, NewMapRecord()))
		assert.True(t, runFilter(t, `http.host matches //`, webRecord()))
	})

	t.Run("empty record matches nothing concrete", func(t *testing.T) {
		rec := NewMapRecord()
		assert.False(t, runFilter(t, `tcp.port == 443`, rec))
		assert.False(t, runFilter(t, `http.host contains "x"`, rec))
		assert.True(t, runFilter(t, `not tcp.port`, rec))
	})

	t.Run("deep nesting", func(t *testing.T) {
		rec := webRecord()
		filter := `((((tcp.port == 443))) && ((frame.len > 0) || (not tcp.port)))`
		assert.True(t, runFilter(t, filter, rec))
	})
}

func TestFilterRunConcurrent(t *testing.T) {
	f, err := Compile(`tcp.port == 443 && http.host contains "example"`, testRegistry())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			match := webRecord()
			miss := NewMapRecord().SetUint("tcp.port", 80)
			for j := 0; j < 500; j++ {
				assert.True(t, f.Run(match))
				assert.False(t, f.Run(miss))
			}
		}()
	}
	wg.Wait()
}
