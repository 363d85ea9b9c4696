package postgres

// SQL query constants for attribute operations

const (
	// _SQL_GET_ATTRIBUTES retrieves the attributes of a path
	_SQL_GET_ATTRIBUTES = `
		SELECT path, permission, owner, grp, mtime, atime, updated_at
		FROM attributes
		WHERE path = $1`

	// _SQL_PUT_ATTRIBUTES creates or replaces the attributes of a path
	_SQL_PUT_ATTRIBUTES = `
		INSERT INTO attributes (path, permission, owner, grp, mtime, atime, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (path) DO UPDATE
		SET permission = EXCLUDED.permission, owner = EXCLUDED.owner, grp = EXCLUDED.grp,
		    mtime = EXCLUDED.mtime, atime = EXCLUDED.atime, updated_at = NOW()
		RETURNING updated_at`

	// _SQL_DELETE_SUBTREE deletes a path and its descendants
	_SQL_DELETE_SUBTREE = `
		DELETE FROM attributes
		WHERE path = $1 OR path LIKE $2 ESCAPE '\'`

	// _SQL_DELETE_SUBTREE_EXCEPT deletes a subtree, sparing a nested one
	_SQL_DELETE_SUBTREE_EXCEPT = `
		DELETE FROM attributes
		WHERE (path = $1 OR path LIKE $2 ESCAPE '\')
		  AND NOT (path = $3 OR path LIKE $4 ESCAPE '\')`

	// _SQL_RENAME_SUBTREE rewrites the prefix of a path and its descendants
	_SQL_RENAME_SUBTREE = `
		UPDATE attributes
		SET path = $1 || substr(path, $2), updated_at = NOW()
		WHERE path = $3 OR path LIKE $4 ESCAPE '\'`
)
