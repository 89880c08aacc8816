package database

import (
	"errors"
	"testing"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafehub/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSeedIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Seed(db))
	require.NoError(t, Seed(db))

	var tables, menu, users int
	db.Model(&models.Table{}).Count(&tables)
	db.Model(&models.MenuItem{}).Count(&menu)
	db.Model(&models.User{}).Count(&users)

	assert.Equal(t, 6, tables)
	assert.Equal(t, 5, menu)
	assert.Equal(t, 3, users)

	var latte models.MenuItem
	require.NoError(t, db.Where("name = ?", "Latte").First(&latte).Error)
	assert.Len(t, latte.Recipe, 2)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)

	boom := errors.New("boom")
	err := WithTx(db, func(tx *gorm.DB) error {
		if err := tx.Create(&models.Table{Name: "T9", Status: models.TableStatusEmpty}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.Equal(t, boom, err)

	var count int
	db.Model(&models.Table{}).Count(&count)
	assert.Equal(t, 0, count)
}

func TestWithTxCommits(t *testing.T) {
	db := openTestDB(t)

	err := WithTx(db, func(tx *gorm.DB) error {
		return tx.Create(&models.Table{Name: "T1", Status: models.TableStatusEmpty}).Error
	})
	require.NoError(t, err)

	var count int
	db.Model(&models.Table{}).Count(&count)
	assert.Equal(t, 1, count)
}

func TestUniqueViolation(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Create(&models.Table{Name: "T1", Status: models.TableStatusEmpty}).Error)
	err := db.Create(&models.Table{Name: "T1", Status: models.TableStatusEmpty}).Error

	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsNotFound(db.First(&models.Table{}, 99).Error))
}
