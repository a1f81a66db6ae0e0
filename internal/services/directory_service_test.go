package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/darusc/Fileknight/internal/models"
	"gorm.io/gorm"
)

func TestDirectoryService_CreateRoot(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	t.Run("creates root and container", func(t *testing.T) {
		user, root := env.createUser(t, "alice")
		if !root.IsRoot() {
			t.Fatalf("expected root directory, got parent %v", root.ParentID)
		}
		if root.OwnerID == nil || *root.OwnerID != user.ID {
			t.Fatalf("expected root owned by %s, got %v", user.ID, root.OwnerID)
		}
		if root.Name != "alice" {
			t.Fatalf("expected root named after user, got %q", root.Name)
		}
		info, err := os.Stat(filepath.Dir(env.fs.Path("alice", models.NewID())))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected container directory, got %v", err)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		user, root := env.createUser(t, "bob")
		again, err := env.dirs.CreateRoot(ctx, user)
		if err != nil {
			t.Fatalf("second CreateRoot failed: %v", err)
		}
		if again.ID != root.ID {
			t.Fatalf("expected same root %s, got %s", root.ID, again.ID)
		}
		var roots int64
		env.db.Model(&models.Directory{}).Where("owner_id = ?", user.ID).Count(&roots)
		if roots != 1 {
			t.Fatalf("expected exactly one root, got %d", roots)
		}
	})

	t.Run("container failure rolls back the row", func(t *testing.T) {
		user := &models.User{Username: "carol", Role: models.UserRoleUser}
		if err := env.db.Create(user).Error; err != nil {
			t.Fatalf("failed creating user: %v", err)
		}
		env.store.failContainer = true
		defer func() { env.store.failContainer = false }()

		_, err := env.dirs.CreateRoot(ctx, user)
		if !IsKind(err, KindStorageIO) {
			t.Fatalf("expected storage error, got %v", err)
		}
		var roots int64
		env.db.Model(&models.Directory{}).Where("owner_id = ?", user.ID).Count(&roots)
		if roots != 0 {
			t.Fatalf("expected no root row after failure, got %d", roots)
		}
	})
}

func TestDirectoryService_CreateAndUpdate(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, root := env.createUser(t, "alice")
	_, otherRoot := env.createUser(t, "mallory")

	t.Run("create trims and requires a name", func(t *testing.T) {
		dir, err := env.dirs.Create(ctx, root, "  Work  ")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if dir.Name != "Work" || dir.ParentID == nil || *dir.ParentID != root.ID || dir.OwnerID != nil {
			t.Fatalf("unexpected directory %+v", dir)
		}

		_, err = env.dirs.Create(ctx, root, "   ")
		assertAppError(t, err, ErrNameRequired)

		_, err = env.dirs.Create(ctx, root, "a/b")
		assertAppError(t, err, ErrNameInvalid)
	})

	t.Run("rename and move", func(t *testing.T) {
		a := env.mkdir(t, root, "A")
		b := env.mkdir(t, root, "B")

		newName := "Renamed"
		updated, err := env.dirs.Update(ctx, a, b, &newName)
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.Name != "Renamed" || *updated.ParentID != b.ID {
			t.Fatalf("unexpected result %+v", updated)
		}

		unchanged, err := env.dirs.Update(ctx, updated, nil, nil)
		if err != nil || unchanged.ID != updated.ID {
			t.Fatalf("expected no-op update, got %v", err)
		}
	})

	t.Run("root cannot be renamed or moved", func(t *testing.T) {
		name := "other"
		_, err := env.dirs.Update(ctx, root, nil, &name)
		assertAppError(t, err, ErrRootImmutable)

		target := env.mkdir(t, root, "Target")
		_, err = env.dirs.Update(ctx, root, target, nil)
		assertAppError(t, err, ErrRootImmutable)
	})

	t.Run("cannot move into itself or a descendant", func(t *testing.T) {
		parent := env.mkdir(t, root, "Parent")
		child := env.mkdir(t, parent, "Child")
		grandchild := env.mkdir(t, child, "Grandchild")

		_, err := env.dirs.Update(ctx, parent, parent, nil)
		assertAppError(t, err, ErrInvalidMove)
		_, err = env.dirs.Update(ctx, parent, grandchild, nil)
		assertAppError(t, err, ErrInvalidMove)
	})

	t.Run("cannot move across owners", func(t *testing.T) {
		dir := env.mkdir(t, root, "Mine")
		_, err := env.dirs.Update(ctx, dir, otherRoot, nil)
		assertAppError(t, err, ErrFolderAccessDenied)
	})

	t.Run("cannot create under a binned folder", func(t *testing.T) {
		binned := env.mkdir(t, root, "Binned")
		if err := env.dirs.SoftDelete(ctx, binned); err != nil {
			t.Fatalf("SoftDelete failed: %v", err)
		}
		_, err := env.dirs.Create(ctx, binned, "inside")
		assertAppError(t, err, ErrFolderNotFound)
	})
}

func TestDirectoryService_Content(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, root := env.createUser(t, "alice")

	env.mkdir(t, root, "zeta")
	env.mkdir(t, root, "alpha")
	hidden := env.mkdir(t, root, "hidden")
	env.upload(t, root, "b.txt", "b")
	env.upload(t, root, "a.txt", "a")
	gone := env.upload(t, root, "gone.txt", "x")

	if err := env.dirs.SoftDelete(ctx, hidden); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if err := env.files.SoftDelete(ctx, gone); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	content, err := env.dirs.Content(ctx, root)
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	if len(content.Directories) != 2 || content.Directories[0].Name != "alpha" || content.Directories[1].Name != "zeta" {
		t.Fatalf("unexpected directories %+v", content.Directories)
	}
	if len(content.Files) != 2 || content.Files[0].Name != "a" || content.Files[1].Name != "b" {
		t.Fatalf("unexpected files %+v", content.Files)
	}
}

func TestDirectoryService_Delete(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, root := env.createUser(t, "alice")

	t.Run("removes the whole subtree", func(t *testing.T) {
		top := env.mkdir(t, root, "top")
		mid := env.mkdir(t, top, "mid")
		leaf := env.mkdir(t, mid, "leaf")
		f1 := env.upload(t, top, "one.txt", "1")
		f2 := env.upload(t, leaf, "two.txt", "2")
		keep := env.upload(t, root, "keep.txt", "k")

		if err := env.dirs.Delete(ctx, top); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		for _, id := range []string{top.ID, mid.ID, leaf.ID} {
			if _, err := env.dirs.Get(ctx, id); err == nil {
				t.Fatalf("expected folder %s to be gone", id)
			}
		}
		for _, f := range []*models.File{f1, f2} {
			if _, err := env.files.Get(ctx, f.ID); err == nil {
				t.Fatalf("expected file %s to be gone", f.ID)
			}
			if env.objectExists(t, root.Name, f.ID) {
				t.Fatalf("expected object %s to be removed", f.ID)
			}
		}
		if !env.objectExists(t, root.Name, keep.ID) {
			t.Fatal("unrelated object was removed")
		}
	})

	t.Run("empty folder", func(t *testing.T) {
		empty := env.mkdir(t, root, "empty")
		if err := env.dirs.Delete(ctx, empty); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	})

	t.Run("object removal failure leaves no row without bytes", func(t *testing.T) {
		dir := env.mkdir(t, root, "sticky")
		a := env.upload(t, dir, "a.txt", "a")
		b := env.upload(t, dir, "b.txt", "b")

		env.store.removes, env.store.failRemoveAt = 0, 2
		err := env.dirs.Delete(ctx, dir)
		env.store.failRemoveAt = 0
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		if _, err := env.dirs.Get(ctx, dir.ID); err == nil {
			t.Fatal("expected folder to be gone")
		}
		remaining := 0
		for _, f := range []*models.File{a, b} {
			if _, err := env.files.Get(ctx, f.ID); err == nil {
				t.Fatalf("expected file %s to be gone", f.Name)
			}
			if env.objectExists(t, root.Name, f.ID) {
				remaining++
			}
		}
		if remaining != 1 {
			t.Fatalf("expected exactly one orphaned object, found %d", remaining)
		}
		env.assertRowsHaveObjects(t)
	})

	t.Run("database failure keeps rows and objects", func(t *testing.T) {
		dir := env.mkdir(t, root, "pinned")
		sub := env.mkdir(t, dir, "sub")
		a := env.upload(t, dir, "a.txt", "a")
		b := env.upload(t, sub, "b.txt", "b")

		const callback = "test:fail_directory_delete"
		if err := env.db.Callback().Delete().Before("gorm:delete").Register(callback, func(db *gorm.DB) {
			if db.Statement.Table == "directories" {
				_ = db.AddError(errInjected)
			}
		}); err != nil {
			t.Fatalf("registering callback: %v", err)
		}
		err := env.dirs.Delete(ctx, dir)
		_ = env.db.Callback().Delete().Remove(callback)
		if !IsKind(err, KindInternal) {
			t.Fatalf("expected internal error, got %v", err)
		}

		for _, id := range []string{dir.ID, sub.ID} {
			if _, err := env.dirs.Get(ctx, id); err != nil {
				t.Fatalf("expected folder %s to survive, got %v", id, err)
			}
		}
		for _, f := range []*models.File{a, b} {
			if env.readFile(t, f) != f.Name {
				t.Fatalf("expected %s to keep its contents", f.Name)
			}
		}
		env.assertRowsHaveObjects(t)

		if err := env.dirs.Delete(ctx, dir); err != nil {
			t.Fatalf("retry failed: %v", err)
		}
	})

	t.Run("root is refused", func(t *testing.T) {
		assertAppError(t, env.dirs.Delete(ctx, root), ErrRootImmutable)
		assertAppError(t, env.dirs.SoftDelete(ctx, root), ErrRootImmutable)
	})
}

func TestDirectoryService_DeleteRoot(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	user, root := env.createUser(t, "alice")
	sub := env.mkdir(t, root, "sub")
	file := env.upload(t, sub, "a.txt", "a")

	if err := env.dirs.DeleteRoot(ctx, user); err != nil {
		t.Fatalf("DeleteRoot failed: %v", err)
	}
	if env.count(t, &models.Directory{}) != 0 || env.count(t, &models.File{}) != 0 {
		t.Fatal("expected no rows left")
	}
	if env.objectExists(t, root.Name, file.ID) {
		t.Fatal("expected container to be removed")
	}

	if err := env.dirs.DeleteRoot(ctx, user); err != nil {
		t.Fatalf("expected no-op for a user without root, got %v", err)
	}
}

func TestDirectoryTreeShape(t *testing.T) {
	env := setupTestEnv(t)
	_, root := env.createUser(t, "alice")
	a := env.mkdir(t, root, "a")
	env.mkdir(t, a, "b")

	var dirs []models.Directory
	if err := env.db.Find(&dirs).Error; err != nil {
		t.Fatalf("failed loading folders: %v", err)
	}
	for _, d := range dirs {
		if (d.ParentID == nil) == (d.OwnerID == nil) {
			t.Fatalf("folder %s must have exactly one of parent and owner", d.ID)
		}
	}
}
