package catalog

import (
	"sync"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func testEntry(name, key string) *Entry {
	return &Entry{
		ID:          MakeID(KindDirectory, key),
		DisplayName: name,
		Kind:        KindDirectory,
		StableKey:   key,
		Target:      Target{Args: []string{key}},
		Weight:      1,
	}
}

var _ = ginkgo.Describe("Store", func() {
	var (
		store *Store
		t0    time.Time
	)

	ginkgo.BeforeEach(func() {
		store = NewStore()
		t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	})

	ginkgo.Describe("NewStore", func() {
		ginkgo.It("should start with an empty version-0 snapshot", func() {
			view := store.Current()
			gomega.Expect(view.Snapshot.Version()).To(gomega.Equal(uint64(0)))
			gomega.Expect(view.Snapshot.Len()).To(gomega.Equal(0))
			gomega.Expect(view.Usage.Len()).To(gomega.Equal(0))
		})
	})

	ginkgo.Describe("Publish", func() {
		ginkgo.It("should increment the version on every publish", func() {
			store.Publish([]*Entry{testEntry("a", "/bin/a")})
			store.Publish([]*Entry{testEntry("a", "/bin/a")})
			gomega.Expect(store.Version()).To(gomega.Equal(uint64(2)))
		})

		ginkgo.It("should order entries by name then id", func() {
			view := store.Publish([]*Entry{
				testEntry("zed", "/bin/zed"),
				testEntry("alpha", "/bin/alpha"),
				testEntry("mid", "/bin/mid"),
			})
			names := []string{}
			for _, e := range view.Snapshot.Entries() {
				names = append(names, e.DisplayName)
			}
			gomega.Expect(names).To(gomega.Equal([]string{"alpha", "mid", "zed"}))
		})

		ginkgo.It("should not change a view that was read before", func() {
			old := store.Publish([]*Entry{testEntry("a", "/bin/a")})
			store.Publish([]*Entry{testEntry("b", "/bin/b")})

			gomega.Expect(old.Snapshot.Version()).To(gomega.Equal(uint64(1)))
			_, ok := old.Snapshot.Get(MakeID(KindDirectory, "/bin/a"))
			gomega.Expect(ok).To(gomega.BeTrue())
			_, ok = old.Snapshot.Get(MakeID(KindDirectory, "/bin/b"))
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("should carry usage forward for keys that survive", func() {
			store.Publish([]*Entry{testEntry("a", "/bin/a")})
			store.RecordLaunch("/bin/a", t0)
			store.RecordLaunch("/bin/a", t0.Add(time.Minute))

			view := store.Publish([]*Entry{testEntry("a", "/bin/a")})
			stats, ok := view.Usage.Get("/bin/a")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(stats.LaunchCount).To(gomega.Equal(uint64(2)))
			gomega.Expect(stats.LastLaunchedAt).To(gomega.Equal(t0.Add(time.Minute)))
		})

		ginkgo.It("should keep usage through two missing rebuilds and drop it on the third", func() {
			store.Publish([]*Entry{testEntry("a", "/bin/a")})
			store.RecordLaunch("/bin/a", t0)

			v := store.Publish(nil)
			s, ok := v.Usage.Get("/bin/a")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(s.Misses()).To(gomega.Equal(1))

			v = store.Publish(nil)
			_, ok = v.Usage.Get("/bin/a")
			gomega.Expect(ok).To(gomega.BeTrue())

			v = store.Publish(nil)
			_, ok = v.Usage.Get("/bin/a")
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("should reset the grace counter when the key comes back", func() {
			store.Publish([]*Entry{testEntry("a", "/bin/a")})
			store.RecordLaunch("/bin/a", t0)
			store.Publish(nil)
			store.Publish(nil)
			v := store.Publish([]*Entry{testEntry("a", "/bin/a")})
			s, _ := v.Usage.Get("/bin/a")
			gomega.Expect(s.Misses()).To(gomega.Equal(0))

			store.Publish(nil)
			v = store.Publish(nil)
			_, ok := v.Usage.Get("/bin/a")
			gomega.Expect(ok).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("RecordLaunch", func() {
		ginkgo.It("should leave the snapshot and the previous usage table untouched", func() {
			before := store.Publish([]*Entry{testEntry("a", "/bin/a")})
			stats := store.RecordLaunch("/bin/a", t0)
			gomega.Expect(stats.LaunchCount).To(gomega.Equal(uint64(1)))

			after := store.Current()
			gomega.Expect(after.Snapshot).To(gomega.BeIdenticalTo(before.Snapshot))
			gomega.Expect(before.Usage.Len()).To(gomega.Equal(0))
			gomega.Expect(after.Usage.Len()).To(gomega.Equal(1))
			gomega.Expect(after.Usage.Latest()).To(gomega.Equal(t0))
		})

		ginkgo.It("should not move last launch time backwards", func() {
			store.RecordLaunch("/bin/a", t0)
			stats := store.RecordLaunch("/bin/a", t0.Add(-time.Hour))
			gomega.Expect(stats.LaunchCount).To(gomega.Equal(uint64(2)))
			gomega.Expect(stats.LastLaunchedAt).To(gomega.Equal(t0))
		})

		ginkgo.It("should count concurrent launches exactly", func() {
			store.Publish([]*Entry{testEntry("a", "/bin/a")})
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					store.RecordLaunch("/bin/a", t0)
				}()
			}
			wg.Wait()
			stats, _ := store.Current().Usage.Get("/bin/a")
			gomega.Expect(stats.LaunchCount).To(gomega.Equal(uint64(50)))
		})
	})

	ginkgo.Describe("SeedUsage", func() {
		ginkgo.It("should add persisted stats without overwriting live ones", func() {
			store.RecordLaunch("/bin/a", t0)
			store.SeedUsage(map[string]UsageStats{
				"/bin/a": {LaunchCount: 99},
				"/bin/b": {LaunchCount: 3, LastLaunchedAt: t0.Add(time.Hour)},
			})
			usage := store.Current().Usage
			a, _ := usage.Get("/bin/a")
			b, _ := usage.Get("/bin/b")
			gomega.Expect(a.LaunchCount).To(gomega.Equal(uint64(1)))
			gomega.Expect(b.LaunchCount).To(gomega.Equal(uint64(3)))
			gomega.Expect(usage.Latest()).To(gomega.Equal(t0.Add(time.Hour)))
			gomega.Expect(usage.Keys()).To(gomega.Equal([]string{"/bin/a", "/bin/b"}))
		})
	})
})

var _ = ginkgo.Describe("SourceKind", func() {
	ginkgo.It("should rank alias over package over shortcut over directory", func() {
		gomega.Expect(KindAlias.Precedence()).To(gomega.BeNumerically(">", KindPackage.Precedence()))
		gomega.Expect(KindPackage.Precedence()).To(gomega.BeNumerically(">", KindShortcut.Precedence()))
		gomega.Expect(KindShortcut.Precedence()).To(gomega.BeNumerically(">", KindDirectory.Precedence()))
	})

	ginkgo.It("should parse configuration names", func() {
		k, ok := ParseSourceKind(" Shortcut ")
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(k).To(gomega.Equal(KindShortcut))
		_, ok = ParseSourceKind("registry")
		gomega.Expect(ok).To(gomega.BeFalse())
	})

	ginkgo.It("should derive stable ids from the origin", func() {
		gomega.Expect(MakeID(KindAlias, "code")).To(gomega.Equal(MakeID(KindAlias, "code")))
		gomega.Expect(MakeID(KindAlias, "code")).NotTo(gomega.Equal(MakeID(KindPackage, "code")))
		gomega.Expect(MakeID(KindAlias, "code")).To(gomega.HavePrefix("als-"))
	})
})
