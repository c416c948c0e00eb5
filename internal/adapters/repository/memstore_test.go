package repository_test

import (
	"context"
	"testing"

	"github.com/okian/harvester/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemStoreClose(t *testing.T) {
	Convey("Given a closed MemStore", t, func() {
		s := repository.NewMemStore()
		So(s.Close(), ShouldBeNil)
		ctx := context.Background()

		Convey("Then every operation reports ErrClosed", func() {
			_, err := s.MatchExists(ctx, 1)
			So(err, ShouldEqual, repository.ErrClosed)

			_, _, err = s.ConsumeQuota(ctx, "2025-01-01", 1, 10)
			So(err, ShouldEqual, repository.ErrClosed)

			_, _, err = s.GetCursor(ctx, "default", 71)
			So(err, ShouldEqual, repository.ErrClosed)

			_, err = s.Counts(ctx, "default")
			So(err, ShouldEqual, repository.ErrClosed)
		})
	})
}
