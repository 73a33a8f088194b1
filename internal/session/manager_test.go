package session

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/ledger-sense/internal/commit"
	"github.com/zombor/ledger-sense/internal/upload"
)

var _ = Describe("Manager", func() {
	var (
		manager   *Manager
		clock     *mockTimeSource
		committer *mockCommitter
		deps      Deps
	)

	BeforeEach(func() {
		clock = &mockTimeSource{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
		deps, committer = testDeps()
		manager = NewManagerWithDeps(deps, &mockIDGenerator{ids: []string{"s1", "s2"}}, clock)
	})

	It("should create sessions with generated ids", func() {
		s := manager.Create()
		Expect(s.ID).To(Equal("s1"))
		Expect(s.CreatedAt).To(Equal(clock.now))

		got, err := manager.Get("s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeIdenticalTo(s))
	})

	It("should keep sessions independent", func() {
		a, b := manager.Create(), manager.Create()
		a.Queue.AddFiles(&upload.File{Name: "a.png", MIMEType: "image/png", Size: 1})
		Expect(b.Queue.Len()).To(Equal(0))
	})

	It("should fail for unknown sessions", func() {
		_, err := manager.Get("missing")
		Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		Expect(errors.Is(manager.Delete("missing"), ErrNotFound)).To(BeTrue())
	})

	It("should delete sessions", func() {
		manager.Create()
		Expect(manager.Delete("s1")).To(Succeed())
		Expect(manager.Len()).To(Equal(0))
	})

	It("should expire sessions idle past the max age", func() {
		manager.Create()
		clock.now = clock.now.Add(30 * time.Minute)
		manager.Create()

		clock.now = clock.now.Add(45 * time.Minute)
		Expect(manager.CleanupIdle(time.Hour)).To(Equal(1))

		_, err := manager.Get("s1")
		Expect(err).To(HaveOccurred())
		_, err = manager.Get("s2")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should count a Get as activity", func() {
		manager.Create()
		clock.now = clock.now.Add(50 * time.Minute)
		_, err := manager.Get("s1")
		Expect(err).NotTo(HaveOccurred())

		clock.now = clock.now.Add(50 * time.Minute)
		Expect(manager.CleanupIdle(time.Hour)).To(Equal(0))
	})

	Describe("Session", func() {
		var s *Session

		BeforeEach(func() {
			s = manager.Create()
			s.dispatcher.WithNormalizer(nil)
		})

		It("should fill the table from a dispatched upload", func() {
			s.Queue.AddFiles(&upload.File{Name: "a.png", MIMEType: "image/png", Size: 1, Data: []byte("x")})

			s.Dispatch(context.Background())

			Expect(s.Table.Rows()).To(HaveLen(1))
			Expect(s.State().Files[0].Status).To(Equal(upload.StatusSuccess))
		})

		It("should clear the table when the queue empties", func() {
			s.Queue.AddFiles(&upload.File{Name: "a.png", MIMEType: "image/png", Size: 1, Data: []byte("x")})
			s.Dispatch(context.Background())

			Expect(s.Queue.Dismiss(0)).To(Succeed())
			Expect(s.Table.Len()).To(Equal(0))
		})

		It("should commit with the resolved user and clear on success", func() {
			s.Queue.AddFiles(&upload.File{Name: "a.png", MIMEType: "image/png", Size: 1, Data: []byte("x")})
			s.Dispatch(context.Background())

			res, err := s.Commit(context.Background(), commit.ModeSales, "2026-10-14", "token")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Inserted).To(Equal(1))
			Expect(committer.context.User.ID).To(Equal("7"))
			Expect(committer.context.Date).To(Equal("2026-10-14"))
			Expect(s.Queue.Len()).To(Equal(0))
			Expect(s.Table.Len()).To(Equal(0))
		})

		It("should keep everything when the commit fails", func() {
			committer.err = commit.ErrCommitFailed
			s.Queue.AddFiles(&upload.File{Name: "a.png", MIMEType: "image/png", Size: 1, Data: []byte("x")})
			s.Dispatch(context.Background())

			_, err := s.Commit(context.Background(), commit.ModeSales, "2026-10-14", "token")
			Expect(errors.Is(err, commit.ErrCommitFailed)).To(BeTrue())
			Expect(s.Queue.Len()).To(Equal(1))
			Expect(s.Table.Len()).To(Equal(1))
		})

		It("should commit without a user when none can be resolved", func() {
			s.users = &mockUsers{err: errors.New("unauthorized")}

			_, _ = s.Commit(context.Background(), commit.ModeSales, "2026-10-14", "token")
			Expect(committer.context.User).To(BeNil())
		})
	})
})
