package usagedb

import (
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/0xADE/ade-launchd/internal/catalog"
)

var _ = Describe("DB", func() {
	var (
		db       *DB
		stateDir string
		now      time.Time
	)

	BeforeEach(func() {
		var err error
		stateDir, err = os.MkdirTemp("", "ade-usagedb-test-*")
		Expect(err).NotTo(HaveOccurred())

		db, err = Open(filepath.Join(stateDir, "ade"))
		Expect(err).NotTo(HaveOccurred())
		Expect(db).NotTo(BeNil())
		now = time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	})

	AfterEach(func() {
		if db != nil {
			Expect(db.Close()).To(Succeed())
		}
		if stateDir != "" {
			Expect(os.RemoveAll(stateDir)).To(Succeed())
		}
	})

	Describe("Open", func() {
		It("should create the state directory and database file", func() {
			Expect(filepath.Join(stateDir, "ade")).To(BeADirectory())
			Expect(filepath.Join(stateDir, "ade", DBFile)).To(BeAnExistingFile())
		})

		It("should start empty", func() {
			stats, err := db.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(BeEmpty())
		})
	})

	Describe("Put", func() {
		It("should store stats by key", func() {
			Expect(db.Put("/usr/bin/gimp", catalog.UsageStats{LaunchCount: 3, LastLaunchedAt: now})).To(Succeed())
			Expect(db.Put("pkg:spotify", catalog.UsageStats{LaunchCount: 1})).To(Succeed())
			Expect(db.Put("/usr/bin/gimp", catalog.UsageStats{LaunchCount: 4, LastLaunchedAt: now.Add(time.Minute)})).To(Succeed())

			stats, err := db.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(HaveLen(2))
			Expect(stats["/usr/bin/gimp"].LaunchCount).To(Equal(uint64(4)))
			Expect(stats["/usr/bin/gimp"].LastLaunchedAt).To(BeTemporally("==", now.Add(time.Minute)))
			Expect(stats["pkg:spotify"].LastLaunchedAt.IsZero()).To(BeTrue())
		})
	})

	Describe("Replace", func() {
		It("should drop keys that are not in the new table", func() {
			Expect(db.Put("old", catalog.UsageStats{LaunchCount: 9})).To(Succeed())
			Expect(db.Replace(map[string]catalog.UsageStats{
				"a": {LaunchCount: 1, LastLaunchedAt: now},
				"b": {LaunchCount: 2, LastLaunchedAt: now},
			})).To(Succeed())

			stats, err := db.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(HaveLen(2))
			Expect(stats).NotTo(HaveKey("old"))
			Expect(stats["b"].LaunchCount).To(Equal(uint64(2)))
		})

		It("should accept an empty table", func() {
			Expect(db.Put("old", catalog.UsageStats{LaunchCount: 9})).To(Succeed())
			Expect(db.Replace(nil)).To(Succeed())
			stats, err := db.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(BeEmpty())
		})
	})

	It("should persist across reopen", func() {
		Expect(db.Put("/usr/bin/vim", catalog.UsageStats{LaunchCount: 7, LastLaunchedAt: now})).To(Succeed())
		Expect(db.Close()).To(Succeed())

		var err error
		db, err = Open(filepath.Join(stateDir, "ade"))
		Expect(err).NotTo(HaveOccurred())
		stats, err := db.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(stats["/usr/bin/vim"].LaunchCount).To(Equal(uint64(7)))
		Expect(stats["/usr/bin/vim"].LastLaunchedAt).To(BeTemporally("==", now))
	})

	Describe("Close", func() {
		It("should handle multiple close calls gracefully", func() {
			Expect(db.Close()).To(Succeed())
			Expect(db.Close()).To(Succeed())
		})

		It("should fail operations after close", func() {
			Expect(db.Close()).To(Succeed())
			Expect(db.Put("k", catalog.UsageStats{})).To(MatchError(bbolt.ErrDatabaseNotOpen))
			_, err := db.Load()
			Expect(err).To(MatchError(bbolt.ErrDatabaseNotOpen))
		})
	})
})
