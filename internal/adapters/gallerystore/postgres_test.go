package gallerystore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"

	"github.com/okian/presence/internal/adapters/gallerystore"
	"github.com/okian/presence/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPostgresStore(t *testing.T) {
	Convey("Given a postgres gallery store over a mock pool", t, func() {
		mock, err := pgxmock.NewPool()
		So(err, ShouldBeNil)
		defer mock.Close()

		s := gallerystore.NewPostgres(mock)
		ctx := context.Background()

		Convey("When loading", func() {
			rows := pgxmock.NewRows([]string{"identity_id", "display_name", "embedding"}).
				AddRow("S1", "Ada", pgvector.NewVector([]float32{1, 2})).
				AddRow("S2", "Bob", pgvector.NewVector([]float32{3, 4}))
			mock.ExpectQuery("SELECT identity_id, display_name, embedding FROM gallery_entries").
				WillReturnRows(rows)

			entries, skipped, err := s.Load(ctx)

			Convey("Then entries come back in insertion order", func() {
				So(err, ShouldBeNil)
				So(skipped, ShouldEqual, 0)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].Identity, ShouldResemble, model.Identity{ID: "S1", DisplayName: "Ada"})
				So(entries[1].Embedding, ShouldResemble, model.Embedding{3, 4})
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When saving", func() {
			entries := []model.GalleryEntry{
				{Identity: model.Identity{ID: "S1", DisplayName: "Ada"}, Embedding: model.Embedding{1, 2}},
			}
			mock.ExpectBegin()
			mock.ExpectExec("DELETE FROM gallery_entries").WillReturnResult(pgxmock.NewResult("DELETE", 3))
			mock.ExpectExec("INSERT INTO gallery_entries").
				WithArgs("S1", "Ada", pgxmock.AnyArg()).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
			mock.ExpectCommit()

			err := s.Save(ctx, entries)

			Convey("Then the table is rewritten in one transaction", func() {
				So(err, ShouldBeNil)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When an insert fails", func() {
			boom := errors.New("disk full")
			mock.ExpectBegin()
			mock.ExpectExec("DELETE FROM gallery_entries").WillReturnResult(pgxmock.NewResult("DELETE", 0))
			mock.ExpectExec("INSERT INTO gallery_entries").
				WithArgs("S1", pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnError(boom)
			mock.ExpectRollback()

			err := s.Save(ctx, []model.GalleryEntry{{Identity: model.Identity{ID: "S1"}, Embedding: model.Embedding{1}}})

			Convey("Then the transaction is rolled back", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})
	})
}
