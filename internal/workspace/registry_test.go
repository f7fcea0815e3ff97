package workspace_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/policy"
	"github.com/SaintWyss/ragcore/internal/workspace"
)

func TestWorkspace(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Workspace Registry Suite")
}

type fakeRepo struct {
	byID    map[string]domain.Workspace
	acl     map[string]map[string]bool
	nameIdx map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[string]domain.Workspace{}, acl: map[string]map[string]bool{}, nameIdx: map[string]bool{}}
}

func (f *fakeRepo) Create(ctx context.Context, ws domain.Workspace) (domain.Workspace, error) {
	key := ws.OwnerUserID + "/" + ws.Name
	if f.nameIdx[key] {
		return domain.Workspace{}, apperrors.NewConflictError("workspace name already exists for this owner")
	}
	f.nameIdx[key] = true
	f.byID[ws.ID] = ws
	return ws, nil
}

func (f *fakeRepo) Get(ctx context.Context, id string) (domain.Workspace, error) {
	ws, ok := f.byID[id]
	if !ok {
		return domain.Workspace{}, apperrors.NewNotFoundError("workspace")
	}
	return ws, nil
}

func (f *fakeRepo) ListVisible(ctx context.Context, principal policy.Principal, includeArchived bool, page, pageSize int) ([]domain.Workspace, error) {
	var out []domain.Workspace
	for _, ws := range f.byID {
		if ws.IsArchived() && !includeArchived {
			continue
		}
		if policy.CanRead(principal, ws, f.acl[ws.ID]) {
			out = append(out, ws)
		}
	}
	return out, nil
}

func (f *fakeRepo) Update(ctx context.Context, id string, name, description *string) (domain.Workspace, error) {
	ws := f.byID[id]
	if name != nil {
		ws.Name = *name
	}
	if description != nil {
		ws.Description = *description
	}
	f.byID[id] = ws
	return ws, nil
}

func (f *fakeRepo) SetArchived(ctx context.Context, id string, archived bool) (domain.Workspace, error) {
	ws := f.byID[id]
	if archived {
		now := time.Now()
		ws.ArchivedAt = &now
	} else {
		ws.ArchivedAt = nil
	}
	f.byID[id] = ws
	return ws, nil
}

func (f *fakeRepo) SetVisibility(ctx context.Context, id string, visibility domain.Visibility) (domain.Workspace, error) {
	ws := f.byID[id]
	ws.Visibility = visibility
	f.byID[id] = ws
	return ws, nil
}

func (f *fakeRepo) ReplaceACL(ctx context.Context, workspaceID string, userIDs []string) (added, removed []string, err error) {
	existing := f.acl[workspaceID]
	next := map[string]bool{}
	for _, id := range userIDs {
		next[id] = true
		if existing == nil || !existing[id] {
			added = append(added, id)
		}
	}
	for id := range existing {
		if !next[id] {
			removed = append(removed, id)
		}
	}
	f.acl[workspaceID] = next
	return added, removed, nil
}

func (f *fakeRepo) ACLMembers(ctx context.Context, workspaceID string) (map[string]bool, error) {
	return f.acl[workspaceID], nil
}

type fakeUserLookup struct {
	active map[string]bool
}

func (f *fakeUserLookup) ActiveUserIDs(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range userIDs {
		if f.active[id] {
			out[id] = true
		}
	}
	return out, nil
}

type fakeAudit struct {
	events []domain.AuditEvent
}

func (f *fakeAudit) Record(ctx context.Context, event domain.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}

var _ = Describe("Registry", func() {
	var (
		repo  *fakeRepo
		users *fakeUserLookup
		audit *fakeAudit
		reg   *workspace.Registry
		ctx   context.Context
		nextID int
		admin  policy.Principal
		owner  policy.Principal
		other  policy.Principal
	)

	BeforeEach(func() {
		repo = newFakeRepo()
		users = &fakeUserLookup{active: map[string]bool{"admin-1": true, "owner-1": true, "other-1": true}}
		audit = &fakeAudit{}
		nextID = 0
		idGen := func() string {
			nextID++
			return "id-" + time.Now().Format("150405") + "-" + string(rune('a'+nextID))
		}
		reg = workspace.New(repo, users, audit, nil, idGen, time.Now, false)
		ctx = context.Background()
		admin = policy.Principal{ID: "admin-1", Role: domain.RoleAdmin, Active: true}
		owner = policy.Principal{ID: "owner-1", Role: domain.RoleEmployee, Active: true}
		other = policy.Principal{ID: "other-1", Role: domain.RoleEmployee, Active: true}
	})

	Describe("Create", func() {
		It("allows an admin to create a workspace for any owner", func() {
			ws, err := reg.Create(ctx, workspace.CreateInput{
				Name: "docs", OwnerUserID: owner.ID, Requester: admin,
			})
			Expect(err).NotTo(HaveOccurred())

			want := domain.Workspace{Name: "docs", OwnerUserID: owner.ID, Visibility: domain.VisibilityPrivate}
			if diff := cmp.Diff(want, ws, cmpopts.IgnoreFields(domain.Workspace{}, "ID", "CreatedAt")); diff != "" {
				Fail("created workspace mismatch (-want +got):\n" + diff)
			}
			Expect(audit.events).To(HaveLen(1))
			Expect(audit.events[0].Action).To(Equal("workspace.create"))
		})

		It("denies a non-admin when self-service is disabled", func() {
			_, err := reg.Create(ctx, workspace.CreateInput{Name: "docs", Requester: owner})
			Expect(err).To(HaveOccurred())
			Expect(apperrors.IsType(err, apperrors.ErrorTypeAccessDenied)).To(BeTrue())
		})

		It("rejects an empty name", func() {
			_, err := reg.Create(ctx, workspace.CreateInput{Name: "", OwnerUserID: owner.ID, Requester: admin})
			Expect(err).To(HaveOccurred())
			Expect(apperrors.IsType(err, apperrors.ErrorTypeValidation)).To(BeTrue())
		})

		It("reports I-W1 uniqueness violations as a conflict", func() {
			_, err := reg.Create(ctx, workspace.CreateInput{Name: "docs", OwnerUserID: owner.ID, Requester: admin})
			Expect(err).NotTo(HaveOccurred())
			_, err = reg.Create(ctx, workspace.CreateInput{Name: "docs", OwnerUserID: owner.ID, Requester: admin})
			Expect(err).To(HaveOccurred())
			Expect(apperrors.IsType(err, apperrors.ErrorTypeConflictUnique)).To(BeTrue())
		})
	})

	Describe("Get", func() {
		var ws domain.Workspace

		BeforeEach(func() {
			var err error
			ws, err = reg.Create(ctx, workspace.CreateInput{Name: "private-ws", OwnerUserID: owner.ID, Requester: admin})
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the workspace to its owner", func() {
			got, err := reg.Get(ctx, owner, ws.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(ws.ID))
		})

		It("masks an unauthorized stranger's access as NotFound, not AccessDenied", func() {
			_, err := reg.Get(ctx, other, ws.ID)
			Expect(err).To(HaveOccurred())
			Expect(apperrors.IsType(err, apperrors.ErrorTypeNotFound)).To(BeTrue())
		})
	})

	Describe("Archive / Unarchive", func() {
		var ws domain.Workspace

		BeforeEach(func() {
			var err error
			ws, err = reg.Create(ctx, workspace.CreateInput{Name: "archivable", OwnerUserID: owner.ID, Requester: admin})
			Expect(err).NotTo(HaveOccurred())
		})

		It("is idempotent", func() {
			first, err := reg.Archive(ctx, owner, ws.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.IsArchived()).To(BeTrue())

			second, err := reg.Archive(ctx, owner, ws.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.IsArchived()).To(BeTrue())
		})

		It("denies a stranger", func() {
			_, err := reg.Archive(ctx, other, ws.ID)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Share", func() {
		var ws domain.Workspace

		BeforeEach(func() {
			var err error
			ws, err = reg.Create(ctx, workspace.CreateInput{Name: "shared-ws", OwnerUserID: owner.ID, Requester: admin})
			Expect(err).NotTo(HaveOccurred())
		})

		It("sets visibility to SHARED when given a non-empty ACL", func() {
			updated, err := reg.Share(ctx, owner, ws.ID, []string{other.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Visibility).To(Equal(domain.VisibilityShared))

			got, err := reg.Get(ctx, other, ws.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(ws.ID))
		})

		It("reverts visibility to PRIVATE when the ACL is emptied", func() {
			_, err := reg.Share(ctx, owner, ws.ID, []string{other.ID})
			Expect(err).NotTo(HaveOccurred())

			updated, err := reg.Share(ctx, owner, ws.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Visibility).To(Equal(domain.VisibilityPrivate))

			_, err = reg.Get(ctx, other, ws.ID)
			Expect(err).To(HaveOccurred())
			Expect(apperrors.IsType(err, apperrors.ErrorTypeNotFound)).To(BeTrue())
		})

		It("rejects a share target that does not exist", func() {
			_, err := reg.Share(ctx, owner, ws.ID, []string{"ghost-1"})
			Expect(err).To(HaveOccurred())
			Expect(apperrors.IsType(err, apperrors.ErrorTypeValidation)).To(BeTrue())
		})

		It("rejects a share target that exists but is inactive", func() {
			users.active["inactive-1"] = false
			_, err := reg.Share(ctx, owner, ws.ID, []string{"inactive-1"})
			Expect(err).To(HaveOccurred())
			Expect(apperrors.IsType(err, apperrors.ErrorTypeValidation)).To(BeTrue())
		})

		It("leaves the ACL untouched when one of several targets is invalid", func() {
			_, err := reg.Share(ctx, owner, ws.ID, []string{other.ID, "ghost-1"})
			Expect(err).To(HaveOccurred())

			acl, err := repo.ACLMembers(ctx, ws.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(acl).To(BeEmpty())
		})
	})

	Describe("Publish", func() {
		It("grants read access to any active employee", func() {
			ws, err := reg.Create(ctx, workspace.CreateInput{Name: "published", OwnerUserID: owner.ID, Requester: admin})
			Expect(err).NotTo(HaveOccurred())

			_, err = reg.Publish(ctx, owner, ws.ID)
			Expect(err).NotTo(HaveOccurred())

			got, err := reg.Get(ctx, other, ws.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Visibility).To(Equal(domain.VisibilityOrgRead))
		})
	})
})
