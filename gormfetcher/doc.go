/*
Package gormfetcher resolves associations with gorm.

Each target type is registered with the model it loads:

	f := gormfetcher.New(db)
	gormfetcher.Register[*Comment](f, "comment")
	gormfetcher.Register[*User](f, "user")
	f.RegisterOwner("post")

Queries are derived from the descriptor the same way for every kind of
association: has_one and has_many filter on the foreign key, belongs_to,
many_to_many and through associations filter the target primary key with a
subquery. A descriptor Join holding a Scope narrows the query further.

Every Fetch and Count for an owner type registered with RegisterOwner first
checks the owner row, and a missing row is reported as
association.ErrOwnerNotFound even when child rows remain.
*/
package gormfetcher
