package icon

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Loader", func() {
	var (
		tmpDir   string
		iconsDir string
		fallback string
		loader   *Loader
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ade-icon-test-*")
		Expect(err).NotTo(HaveOccurred())
		iconsDir = filepath.Join(tmpDir, "icons")
		Expect(os.MkdirAll(iconsDir, 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(iconsDir, "firefox.svg"), []byte("<svg/>"), 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(iconsDir, "gimp.png"), []byte("PNG"), 0644)).To(Succeed())
		fallback = filepath.Join(tmpDir, "default.png")
		Expect(os.WriteFile(fallback, []byte("DEFAULT"), 0644)).To(Succeed())

		loader, err = New(Options{Fallback: fallback, Dirs: []string{filepath.Join(tmpDir, "missing"), iconsDir}, CacheSize: 2})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("should read absolute paths", func() {
		Expect(loader.Load(filepath.Join(iconsDir, "gimp.png"))).To(Equal([]byte("PNG")))
	})

	It("should look up bare names with and without extensions", func() {
		Expect(loader.Load("firefox")).To(Equal([]byte("<svg/>")))
		Expect(loader.Load("gimp.png")).To(Equal([]byte("PNG")))
	})

	It("should fall back for empty, unknown and relative references", func() {
		Expect(loader.Load("")).To(Equal([]byte("DEFAULT")))
		Expect(loader.Load("no-such-icon")).To(Equal([]byte("DEFAULT")))
		Expect(loader.Load("../default")).To(Equal([]byte("DEFAULT")))
	})

	It("should serve cached bytes after the file changes", func() {
		Expect(loader.Load("firefox")).To(Equal([]byte("<svg/>")))
		Expect(os.Remove(filepath.Join(iconsDir, "firefox.svg"))).To(Succeed())
		Expect(loader.Load("firefox")).To(Equal([]byte("<svg/>")))
	})

	It("should return nil without a fallback", func() {
		l, err := New(Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(l.Load("anything")).To(BeNil())
	})
})
