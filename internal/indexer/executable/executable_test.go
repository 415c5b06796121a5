package executable

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/0xADE/ade-launchd/internal/catalog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func names(entries []*catalog.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.DisplayName)
	}
	sort.Strings(out)
	return out
}

var _ = Describe("Scanner", func() {
	var (
		tmpDir string
		ctx    context.Context
	)

	writeFile := func(rel string, mode os.FileMode) string {
		path := filepath.Join(tmpDir, rel)
		Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
		Expect(os.WriteFile(path, []byte("#!/bin/sh\necho test\n"), mode)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ade-exe-test-*")
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("should index executable files only", func() {
		writeFile("tool", 0755)
		writeFile("readme.txt", 0644)
		writeFile(".hidden", 0755)
		writeFile("sub/nested", 0755)

		s, err := New(Options{Root: tmpDir})
		Expect(err).NotTo(HaveOccurred())
		entries, err := s.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(names(entries)).To(Equal([]string{"nested", "tool"}))
	})

	It("should fill entry fields", func() {
		path := writeFile("tool", 0755)
		s, err := New(Options{Root: tmpDir, Weight: 1.5})
		Expect(err).NotTo(HaveOccurred())
		entries, err := s.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))

		e := entries[0]
		Expect(e.Kind).To(Equal(catalog.KindDirectory))
		Expect(e.Target.Args).To(Equal([]string{path}))
		Expect(e.Weight).To(Equal(1.5))
		Expect(e.ID).To(HavePrefix("exe-"))
		Expect(e.StableKey).NotTo(BeEmpty())
	})

	It("should be idempotent", func() {
		writeFile("a", 0755)
		writeFile("b", 0755)
		s, err := New(Options{Root: tmpDir})
		Expect(err).NotTo(HaveOccurred())

		first, err := s.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		second, err := s.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())

		keys := func(entries []*catalog.Entry) []string {
			out := []string{}
			for _, e := range entries {
				out = append(out, e.StableKey+"|"+e.ID)
			}
			sort.Strings(out)
			return out
		}
		Expect(keys(second)).To(Equal(keys(first)))
	})

	It("should respect max depth", func() {
		writeFile("top", 0755)
		writeFile("sub/nested", 0755)
		s, err := New(Options{Root: tmpDir, MaxDepth: 1})
		Expect(err).NotTo(HaveOccurred())
		entries, err := s.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(names(entries)).To(Equal([]string{"top"}))
	})

	It("should apply exclude globs", func() {
		writeFile("keep", 0755)
		writeFile("drop.sh", 0755)
		writeFile("skipdir/inner", 0755)
		s, err := New(Options{Root: tmpDir, Exclude: []string{"*.sh", "skipdir"}})
		Expect(err).NotTo(HaveOccurred())
		entries, err := s.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(names(entries)).To(Equal([]string{"keep"}))
	})

	It("should honour the ignore file", func() {
		writeFile("keep", 0755)
		writeFile("internal-helper", 0755)
		Expect(os.WriteFile(filepath.Join(tmpDir, IgnoreFile), []byte("internal-*\n"), 0644)).To(Succeed())

		s, err := New(Options{Root: tmpDir})
		Expect(err).NotTo(HaveOccurred())
		entries, err := s.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(names(entries)).To(Equal([]string{"keep"}))
	})

	It("should reject invalid exclude patterns", func() {
		_, err := New(Options{Root: tmpDir, Exclude: []string{"[unclosed"}})
		Expect(err).To(HaveOccurred())
	})

	It("should fail softly when the root is missing", func() {
		s, err := New(Options{Root: filepath.Join(tmpDir, "not-mounted")})
		Expect(err).NotTo(HaveOccurred())
		entries, err := s.Scan(ctx)
		Expect(err).To(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("should stop when the context is canceled", func() {
		writeFile("a", 0755)
		s, err := New(Options{Root: tmpDir})
		Expect(err).NotTo(HaveOccurred())
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = s.Scan(canceled)
		Expect(err).To(MatchError(context.Canceled))
	})
})
