package matching_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/okian/presence/internal/domain/gallery"
	"github.com/okian/presence/internal/domain/matching"
	"github.com/okian/presence/internal/domain/model"
	"github.com/okian/presence/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newGallery(entries ...model.GalleryEntry) *gallery.Gallery {
	g := gallery.New(gallery.WithLogger(logger.Nop()))
	for _, e := range entries {
		if err := g.Add(e.Identity, e.Embedding); err != nil {
			panic(err)
		}
	}
	return g
}

func entry(id string, v ...float32) model.GalleryEntry {
	return model.GalleryEntry{Identity: model.Identity{ID: id, DisplayName: "name-" + id}, Embedding: v}
}

func TestDistance(t *testing.T) {
	Convey("Given pairs of embeddings", t, func() {
		So(matching.Distance(model.Embedding{0, 0}, model.Embedding{3, 4}), ShouldAlmostEqual, 5.0)
		So(matching.Distance(model.Embedding{1, 2}, model.Embedding{1, 2}), ShouldEqual, 0)
		So(math.IsInf(matching.Distance(model.Embedding{1}, model.Embedding{1, 2}), 1), ShouldBeTrue)
		So(math.IsInf(matching.Distance(nil, nil), 1), ShouldBeTrue)
	})
}

func TestMatcher(t *testing.T) {
	Convey("Given a matcher with tolerance 0.6", t, func() {
		m := matching.New(0.6)

		Convey("When the gallery is empty", func() {
			res := m.Match(model.Embedding{1, 2}, newGallery().Snapshot())

			Convey("Then nothing matches at infinite distance", func() {
				So(res.Accepted, ShouldBeFalse)
				So(res.Identity, ShouldBeNil)
				So(math.IsInf(res.Distance, 1), ShouldBeTrue)
			})
		})

		Convey("When the query is identical to an entry", func() {
			g := newGallery(entry("S1", 1, 1), entry("S2", 5, 5))
			res := m.Match(model.Embedding{1, 1}, g.Snapshot())

			Convey("Then it matches at distance zero", func() {
				So(res.Accepted, ShouldBeTrue)
				So(res.Identity.ID, ShouldEqual, "S1")
				So(res.Distance, ShouldEqual, 0)
			})
		})

		Convey("When the nearest entry is exactly at tolerance", func() {
			g := newGallery(entry("S1", 0, 0))
			res := matching.New(0.5).Match(model.Embedding{0.5, 0}, g.Snapshot())

			Convey("Then it is accepted", func() {
				So(res.Distance, ShouldEqual, 0.5)
				So(res.Accepted, ShouldBeTrue)
				So(res.Identity.ID, ShouldEqual, "S1")
			})
		})

		Convey("When the nearest entry is beyond tolerance", func() {
			g := newGallery(entry("S1", 0, 0))
			res := m.Match(model.Embedding{1, 0}, g.Snapshot())

			Convey("Then the face is unknown but the distance is reported", func() {
				So(res.Accepted, ShouldBeFalse)
				So(res.Identity, ShouldBeNil)
				So(res.Distance, ShouldAlmostEqual, 1.0)
			})
		})

		Convey("When two entries are equally near", func() {
			g := newGallery(entry("S1", 1, 0), entry("S2", -1, 0))
			wide := matching.New(1)
			res := wide.Match(model.Embedding{0, 0}, g.Snapshot())

			Convey("Then the first inserted wins", func() {
				So(res.Accepted, ShouldBeTrue)
				So(res.Identity.ID, ShouldEqual, "S1")
				So(res.Distance, ShouldEqual, 1)
			})

			Convey("Then the order decides, not the identity", func() {
				swapped := newGallery(entry("S2", -1, 0), entry("S1", 1, 0))
				So(wide.Match(model.Embedding{0, 0}, swapped.Snapshot()).Identity.ID, ShouldEqual, "S2")
			})
		})

		Convey("When the same query is matched repeatedly", func() {
			g := newGallery(entry("S1", 0.1, 0.2), entry("S2", 0.2, 0.1), entry("S3", 0.15, 0.15))
			first := m.Match(model.Embedding{0.15, 0.16}, g.Snapshot())

			Convey("Then every result is identical", func() {
				for i := 0; i < 20; i++ {
					again := m.Match(model.Embedding{0.15, 0.16}, g.Snapshot())
					So(again.Identity.ID, ShouldEqual, first.Identity.ID)
					So(again.Distance, ShouldEqual, first.Distance)
				}
			})
		})

		Convey("When an identity is enrolled and matched against its own embedding", func() {
			g := newGallery(entry("S1", 9, 9))
			So(g.Add(model.Identity{ID: "X"}, model.Embedding{0.3, 0.7}), ShouldBeNil)
			res := m.Match(model.Embedding{0.3, 0.7}, g.Snapshot())

			Convey("Then the round trip matches X at distance zero", func() {
				So(res.Identity.ID, ShouldEqual, "X")
				So(res.Distance, ShouldEqual, 0)
			})
		})
	})
}

func TestHNSWIndex(t *testing.T) {
	Convey("Given a gallery larger than the candidate count", t, func() {
		rng := rand.New(rand.NewSource(7))
		g := gallery.New(gallery.WithDimension(8), gallery.WithLogger(logger.Nop()))
		for i := 0; i < 64; i++ {
			v := make(model.Embedding, 8)
			for j := range v {
				v[j] = rng.Float32()
			}
			So(g.Add(model.Identity{ID: string(rune('A' + i%26))}, v), ShouldBeNil)
		}
		idx := matching.NewHNSWIndex(8)
		m := matching.New(0.6, matching.WithIndex(idx))

		Convey("When probing with a stored embedding", func() {
			snap := g.Snapshot()
			query := snap.Entries[40].Embedding
			res := m.Match(query, snap)

			Convey("Then the exact entry is found", func() {
				So(res.Accepted, ShouldBeTrue)
				So(res.Distance, ShouldEqual, 0)
				So(res.Identity.ID, ShouldEqual, snap.Entries[40].Identity.ID)
				So(idx.Size(), ShouldEqual, 64)
			})
		})

		Convey("When every stored embedding is used as a query under a tight tolerance", func() {
			snap := g.Snapshot()
			tight := matching.New(1e-6, matching.WithIndex(idx))

			Convey("Then each one matches at distance zero", func() {
				for i, e := range snap.Entries {
					res := tight.Match(e.Embedding, snap)
					So(res.Accepted, ShouldBeTrue)
					So(res.Distance, ShouldEqual, 0)
					So(res.Identity.ID, ShouldEqual, snap.Entries[i].Identity.ID)
				}
			})
		})

		Convey("When the gallery grows after the first search", func() {
			m.Match(g.Snapshot().Entries[0].Embedding, g.Snapshot())
			So(g.Add(model.Identity{ID: "new"}, model.Embedding{9, 9, 9, 9, 9, 9, 9, 9}), ShouldBeNil)
			res := m.Match(model.Embedding{9, 9, 9, 9, 9, 9, 9, 9}, g.Snapshot())

			Convey("Then the new entry is indexed and found", func() {
				So(idx.Size(), ShouldEqual, 65)
				So(res.Accepted, ShouldBeTrue)
				So(res.Distance, ShouldEqual, 0)
				So(res.Identity.ID, ShouldEqual, "new")
			})
		})

		Convey("When the query has the wrong dimension", func() {
			res := m.Match(model.Embedding{1, 2}, g.Snapshot())

			Convey("Then nothing matches", func() {
				So(res.Accepted, ShouldBeFalse)
				So(math.IsInf(res.Distance, 1), ShouldBeTrue)
			})
		})
	})

	Convey("Given a gallery no larger than the candidate count", t, func() {
		g := newGallery(entry("S1", 1, 0), entry("S2", -1, 0))
		m := matching.New(2, matching.WithIndex(matching.NewHNSWIndex(8)))

		Convey("Then it behaves like the linear scan", func() {
			res := m.Match(model.Embedding{0, 0}, g.Snapshot())
			So(res.Identity.ID, ShouldEqual, "S1")
		})
	})
}
