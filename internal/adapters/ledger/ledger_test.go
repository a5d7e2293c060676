package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/okian/presence/internal/adapters/ledger"
	"github.com/okian/presence/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func at(day, hms string) time.Time {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", day+" "+hms, time.Local)
	if err != nil {
		panic(err)
	}
	return ts
}

func event(id, day, hms string) model.AttendanceEvent {
	return model.NewAttendanceEvent(model.Identity{ID: id, DisplayName: "name-" + id}, at(day, hms))
}

func strPtr(s string) *string { return &s }

// contract runs the behaviour every Ledger must share.
func contract(newLedger func() ledger.Ledger) {
	ctx := context.Background()

	Convey("When the first sighting of the day is recorded", func() {
		l := newLedger()
		out, err := l.RecordPresent(ctx, event("S1", "2024-05-01", "09:00:00"))

		Convey("Then it is recorded", func() {
			So(err, ShouldBeNil)
			So(out, ShouldEqual, ledger.OutcomeRecorded)
		})

		Convey("And a second write the same day is a no-op", func() {
			out, err := l.RecordPresent(ctx, event("S1", "2024-05-01", "15:30:00"))
			So(err, ShouldBeNil)
			So(out, ShouldEqual, ledger.OutcomeAlreadyRecorded)

			recs, err := l.Query(ctx, strPtr("2024-05-01"))
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 1)
			So(recs[0].Time, ShouldEqual, "09:00:00")
			So(recs[0].Status, ShouldEqual, model.StatusPresent)
		})

		Convey("And the next day records again", func() {
			out, err := l.RecordPresent(ctx, event("S1", "2024-05-02", "09:00:00"))
			So(err, ShouldBeNil)
			So(out, ShouldEqual, ledger.OutcomeRecorded)
		})
	})

	Convey("When several days and identities are recorded", func() {
		l := newLedger()
		for _, ev := range []model.AttendanceEvent{
			event("S2", "2024-05-02", "08:00:00"),
			event("S1", "2024-05-01", "10:00:00"),
			event("S3", "2024-05-01", "09:00:00"),
		} {
			_, err := l.RecordPresent(ctx, ev)
			So(err, ShouldBeNil)
		}

		Convey("Then one date is ordered by time", func() {
			recs, err := l.Query(ctx, strPtr("2024-05-01"))
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 2)
			So(recs[0].IdentityID, ShouldEqual, "S3")
			So(recs[1].IdentityID, ShouldEqual, "S1")
		})

		Convey("And all records are ordered by date then time", func() {
			recs, err := l.Query(ctx, nil)
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 3)
			So(recs[0].IdentityID, ShouldEqual, "S3")
			So(recs[2].IdentityID, ShouldEqual, "S2")
		})
	})

	Convey("When querying a malformed date", func() {
		_, err := newLedger().Query(ctx, strPtr("01/05/2024"))
		So(errors.Is(err, ledger.ErrInvalidDate), ShouldBeTrue)
	})

	Convey("When recording an event without identity", func() {
		_, err := newLedger().RecordPresent(ctx, model.AttendanceEvent{At: time.Now()})
		So(errors.Is(err, ledger.ErrInvalidEvent), ShouldBeTrue)
	})
}

func TestMemoryLedger(t *testing.T) {
	Convey("Given an in-memory ledger", t, func() {
		contract(func() ledger.Ledger { return ledger.NewMemory() })

		Convey("When an identity is registered", func() {
			m := ledger.NewMemory()
			So(m.RegisterIdentity(context.Background(), model.Identity{ID: "S1", DisplayName: "Ada"}), ShouldBeNil)
			So(m.Identities(), ShouldResemble, []model.Identity{{ID: "S1", DisplayName: "Ada"}})
		})
	})
}

func TestRedisLedger(t *testing.T) {
	Convey("Given a redis ledger", t, func() {
		srv := miniredis.RunT(t)
		newLedger := func() ledger.Ledger {
			srv.FlushAll()
			client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
			return ledger.NewRedis(client, "test")
		}
		contract(newLedger)

		Convey("When an identity is registered", func() {
			l := newLedger().(*ledger.Redis)
			So(l.RegisterIdentity(context.Background(), model.Identity{ID: "S1", DisplayName: "Ada"}), ShouldBeNil)
			So(srv.HGet("test:identities", "S1"), ShouldEqual, "Ada")
		})

		Convey("When a write fails", func() {
			l := newLedger()
			ctx := context.Background()
			srv.SetError("READONLY replica")
			_, err := l.RecordPresent(ctx, event("S1", "2024-05-01", "09:00:00"))
			srv.SetError("")

			Convey("Then neither the record nor its date is left behind", func() {
				So(err, ShouldNotBeNil)
				So(srv.Exists("test:attendance:2024-05-01"), ShouldBeFalse)
				So(srv.Exists("test:attendance:dates"), ShouldBeFalse)

				out, err := l.RecordPresent(ctx, event("S1", "2024-05-01", "09:05:00"))
				So(err, ShouldBeNil)
				So(out, ShouldEqual, ledger.OutcomeRecorded)
			})
		})

		Convey("When a day was stored without its date index", func() {
			l := newLedger()
			ctx := context.Background()
			srv.HSet("test:attendance:2024-05-01", "S1",
				`{"identity_id":"S1","display_name":"name-S1","date":"2024-05-01","time":"09:00:00","status":"present"}`)
			out, err := l.RecordPresent(ctx, event("S1", "2024-05-01", "10:00:00"))

			Convey("Then the duplicate is refused and the day becomes listed", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, ledger.OutcomeAlreadyRecorded)
				recs, err := l.Query(ctx, nil)
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 1)
				So(recs[0].Time, ShouldEqual, "09:00:00")
			})
		})

		Convey("When redis is down", func() {
			l := newLedger()
			srv.Close()
			_, err := l.RecordPresent(context.Background(), event("S1", "2024-05-01", "09:00:00"))
			So(err, ShouldNotBeNil)
		})
	})
}
