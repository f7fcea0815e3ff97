package container

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/domain"
)

func TestContainer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Container Suite")
}

type fakeWorkspaceGetter struct {
	workspace  domain.Workspace
	err        error
	aclMembers map[string]bool
	aclErr     error
}

func (f *fakeWorkspaceGetter) Get(ctx context.Context, id string) (domain.Workspace, error) {
	return f.workspace, f.err
}

func (f *fakeWorkspaceGetter) ACLMembers(ctx context.Context, workspaceID string) (map[string]bool, error) {
	return f.aclMembers, f.aclErr
}

var _ = Describe("workspaceLookupAdapter", func() {
	It("masks a NotFound repository error as a clean miss", func() {
		adapter := &workspaceLookupAdapter{repo: &fakeWorkspaceGetter{err: apperrors.NewNotFoundError("workspace")}}

		ws, found, err := adapter.Get(context.Background(), "ws-1")

		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
		Expect(ws).To(Equal(domain.Workspace{}))
	})

	It("passes through a found workspace", func() {
		want := domain.Workspace{ID: "ws-1", Name: "Team Docs"}
		adapter := &workspaceLookupAdapter{repo: &fakeWorkspaceGetter{workspace: want}}

		ws, found, err := adapter.Get(context.Background(), "ws-1")

		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(ws).To(Equal(want))
	})

	It("propagates a non-NotFound error unchanged", func() {
		failure := apperrors.New(apperrors.ErrorTypeInternal, "connection reset")
		adapter := &workspaceLookupAdapter{repo: &fakeWorkspaceGetter{err: failure}}

		_, found, err := adapter.Get(context.Background(), "ws-1")

		Expect(found).To(BeFalse())
		Expect(err).To(Equal(failure))
	})

	It("delegates ACL membership lookups to the repository", func() {
		members := map[string]bool{"user-1": true}
		adapter := &workspaceLookupAdapter{repo: &fakeWorkspaceGetter{aclMembers: members}}

		got, err := adapter.ACLMembers(context.Background(), "ws-1")

		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(members))
	})
})

var _ = Describe("firstOrDefault", func() {
	It("returns the fallback for an empty slice", func() {
		Expect(firstOrDefault(nil, "english")).To(Equal("english"))
	})

	It("returns the first element when present", func() {
		Expect(firstOrDefault([]string{"spanish", "english"}, "english")).To(Equal("spanish"))
	})
})

var _ = Describe("redisAddr", func() {
	It("falls back to localhost when unset", func() {
		Expect(redisAddr("")).To(Equal("localhost:6379"))
	})

	It("passes through a configured address", func() {
		Expect(redisAddr("redis.internal:6380")).To(Equal("redis.internal:6380"))
	})
})
