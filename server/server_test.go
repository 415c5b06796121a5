package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/engine"
	"github.com/0xADE/ade-launchd/internal/indexer"
	"github.com/0xADE/ade-launchd/internal/launcher"
	"github.com/0xADE/ade-launchd/internal/matcher"
)

type fakeBackend struct {
	mu         sync.Mutex
	queries    []string
	limits     []int
	results    []matcher.Result
	launchOpts launcher.Options
	launchErr  error
	rebuildErr error
	icons      map[string][]byte
}

func (f *fakeBackend) Search(query string, limit int) []matcher.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.limits = append(f.limits, limit)
	return f.results
}

func (f *fakeBackend) Rebuild(context.Context) (*catalog.View, error) {
	store := catalog.NewStore()
	view := store.Publish([]*catalog.Entry{{ID: "exe-1", DisplayName: "a", StableKey: "a", Target: catalog.Target{Args: []string{"a"}}}})
	return view, f.rebuildErr
}

func (f *fakeBackend) Launch(_ context.Context, id string, opts launcher.Options) (launcher.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launchOpts = opts
	if f.launchErr != nil {
		return launcher.Handle{}, f.launchErr
	}
	return launcher.Handle{ID: id, PID: 321, Stats: catalog.UsageStats{LaunchCount: 4}}, nil
}

func (f *fakeBackend) IndexVersion() uint64 {
	return 7
}

func (f *fakeBackend) Icon(id string) ([]byte, bool) {
	data, ok := f.icons[id]
	return data, ok
}

func (f *fakeBackend) Status() engine.Status {
	return engine.Status{
		Status: indexer.Status{
			Version:    7,
			Entries:    12,
			Sources:    3,
			Failed:     []string{"directory:/mnt/usb"},
			Err:        errors.New("scan failed"),
			Took:       1500 * time.Microsecond,
			FinishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Rebuilds:   2,
		},
		UsageKeys: 5,
	}
}

// readFullResponse reads one response from r, header included.
func readFullResponse(r *bufio.Reader) (string, error) {
	var buf bytes.Buffer
	for !bytes.HasSuffix(buf.Bytes(), []byte("\n\n\n")) {
		b, err := r.ReadByte()
		if err != nil {
			return buf.String(), err
		}
		buf.WriteByte(b)
	}
	return buf.String(), nil
}

var _ = Describe("Server", func() {
	var (
		backend    *fakeBackend
		srv        *Server
		clientConn net.Conn
		serverConn net.Conn
		reader     *bufio.Reader
		headerSent bool
	)

	BeforeEach(func() {
		backend = &fakeBackend{
			results: []matcher.Result{
				{ID: "lnk-00000000000000aa", DisplayName: "Visual Studio Code", Score: 2180.5, Spans: []matcher.Span{{Field: 1, Start: 0, Len: 2}}},
				{ID: "exe-00000000000000bb", DisplayName: "vs\ttool", Score: 12},
			},
			icons: map[string][]byte{"lnk-00000000000000aa": bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 40), "exe-00000000000000bb": nil},
		}
		srv = &Server{backend: backend, log: zerolog.Nop()}
		clientConn, serverConn = net.Pipe()
		reader = bufio.NewReader(clientConn)
		headerSent = false
		go srv.handleConnection(context.Background(), serverConn)
	})

	AfterEach(func() {
		clientConn.Close()
	})

	send := func(request string) string {
		if !headerSent {
			request = "TXT01" + request
			headerSent = true
		}
		go func() {
			_, _ = clientConn.Write([]byte(request))
		}()
		response, err := readFullResponse(reader)
		Expect(err).NotTo(HaveOccurred())
		Expect(response).To(HavePrefix("TXT01"))
		return strings.TrimPrefix(response, "TXT01")
	}

	It("should answer search with ranked body lines", func() {
		response := send("\"vs\n5\nsearch\n")
		Expect(response).To(Equal("cmd: search\nstatus: 0\nversion: 7\nlist-len: 2\nbody:\n" +
			"lnk-00000000000000aa\t2180.50\t1:0+2\tVisual Studio Code\n" +
			"exe-00000000000000bb\t12.00\t-\tvs tool\n\n\n"))
		Expect(backend.queries).To(Equal([]string{"vs"}))
		Expect(backend.limits).To(Equal([]int{5}))
	})

	It("should list with an empty query and the default limit", func() {
		response := send("list\n")
		Expect(response).To(HavePrefix("cmd: list\nstatus: 0\n"))
		Expect(backend.queries).To(Equal([]string{""}))
		Expect(backend.limits).To(Equal([]int{0}))
	})

	It("should serve several commands on one connection", func() {
		Expect(send("version\n")).To(Equal("cmd: version\nstatus: 0\nversion: 7\n\n\n"))
		Expect(send("\"x\nsearch\n")).To(ContainSubstring("list-len: 2"))
		Expect(send("version\n")).To(ContainSubstring("version: 7"))
	})

	It("should run entries with options", func() {
		response := send("\"opt: terminal\n\"lnk-00000000000000aa\nrun\n")
		Expect(response).To(Equal("cmd: run\nstatus: 0\nid: lnk-00000000000000aa\npid: 321\nlaunches: 4\n\n\n"))
		Expect(backend.launchOpts.Terminal).To(BeTrue())
	})

	It("should map launch errors", func() {
		backend.launchErr = &launcher.Error{ID: "x", Kind: launcher.ErrNotFound}
		Expect(send("\"x\nrun\n")).To(ContainSubstring("error-cmd: run\nerror: not found\n"))

		backend.launchErr = &launcher.Error{ID: "x", Kind: launcher.ErrLaunchFailed, Err: os.ErrNotExist}
		Expect(send("\"x\nrun\n")).To(ContainSubstring("error: launch failed\n"))

		Expect(send("run\n")).To(ContainSubstring("error: missing id\n"))
	})

	It("should reindex", func() {
		Expect(send("reindex\n")).To(Equal("cmd: reindex\nstatus: 0\nversion: 1\nindexed: 1\n\n\n"))

		backend.rebuildErr = indexer.ErrAllSourcesFailed
		Expect(send("reindex\n")).To(ContainSubstring("error: reindex failed\n"))
	})

	It("should report status", func() {
		response := send("status\n")
		Expect(response).To(ContainSubstring("entries: 12\n"))
		Expect(response).To(ContainSubstring("failed: 1\n"))
		Expect(response).To(ContainSubstring("rebuilding: f\n"))
		Expect(response).To(ContainSubstring("usage-keys: 5\n"))
		Expect(response).To(ContainSubstring("finished: 2026-01-02T03:04:05Z\n"))
		Expect(response).To(ContainSubstring("took: 2ms\n"))
		Expect(response).To(ContainSubstring("last-error: scan failed\n"))
		Expect(response).To(HaveSuffix("body:\ndirectory:/mnt/usb\n\n\n"))
	})

	It("should return icons as base64", func() {
		response := send("\"lnk-00000000000000aa\nicon\n")
		Expect(response).To(ContainSubstring("size: 160\nencoding: base64\nbody:\n"))

		_, body, _ := strings.Cut(response, "body:\n")
		encoded := strings.ReplaceAll(strings.TrimRight(body, "\n"), "\n", "")
		data, err := base64.StdEncoding.DecodeString(encoded)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(backend.icons["lnk-00000000000000aa"]))
		for _, l := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
			Expect(len(l)).To(BeNumerically("<=", iconLineLen))
		}

		Expect(send("\"exe-00000000000000bb\nicon\n")).To(ContainSubstring("error: no icon\n"))
		Expect(send("\"missing\nicon\n")).To(ContainSubstring("error: not found\n"))
	})

	It("should report unknown commands and keep the connection", func() {
		Expect(send("frobnicate\n")).To(ContainSubstring("error-cmd: parser\nerror: unknown command\n"))
		Expect(send("version\n")).To(ContainSubstring("version: 7"))
	})

	It("should reject negative limits", func() {
		Expect(send("-1\nsearch\n")).To(ContainSubstring("error: invalid argument\n"))
	})
})

var _ = Describe("Listening", func() {
	It("should accept connections on the socket and stop with the context", func() {
		dir, err := os.MkdirTemp("", "ade-srv-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)
		path := filepath.Join(dir, "sub", "launchd")

		// A stale socket file is replaced
		Expect(os.MkdirAll(filepath.Dir(path), 0700)).To(Succeed())
		Expect(os.WriteFile(path, nil, 0600)).To(Succeed())

		srv, err := NewServer(&fakeBackend{}, path, zerolog.Nop())
		Expect(err).NotTo(HaveOccurred())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Start(ctx) }()

		conn, err := net.Dial("unix", path)
		Expect(err).NotTo(HaveOccurred())
		_, err = fmt.Fprint(conn, "TXT01version\n")
		Expect(err).NotTo(HaveOccurred())
		response, err := readFullResponse(bufio.NewReader(conn))
		Expect(err).NotTo(HaveOccurred())
		Expect(response).To(Equal("TXT01cmd: version\nstatus: 0\nversion: 7\n\n\n"))
		conn.Close()

		cancel()
		Eventually(done).Should(Receive(BeNil()))
		_, err = os.Stat(path)
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("should answer a bad header with an error", func() {
		clientConn, serverConn := net.Pipe()
		defer clientConn.Close()
		srv := &Server{backend: &fakeBackend{}, log: zerolog.Nop()}
		go srv.handleConnection(context.Background(), serverConn)
		go func() { _, _ = clientConn.Write([]byte("JSON1{}\n")) }()

		response, err := readFullResponse(bufio.NewReader(clientConn))
		Expect(err).NotTo(HaveOccurred())
		Expect(response).To(ContainSubstring("error: invalid header\n"))
	})
})
