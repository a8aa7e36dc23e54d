// Package gitsource serves attribute catalogs from a git repository.
//
//	repo, err := gitsource.NewRepository(&gitsource.Config{
//		Repository: "https://example.com/rules.git",
//		Branch:     "main",
//		Path:       "catalog",
//	})
//	source := gitsource.NewSource(repo, loader, logger)
//	store := catalog.NewStore(source, logger)
//	err = store.Reload(ctx)
//	go source.Poll(ctx, store)
package gitsource
