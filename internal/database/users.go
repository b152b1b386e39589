package database

func GetUserByUsername(username string) (*User, error) {
	var u User
	if err := DB.Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func GetUserByID(id int64) (*User, error) {
	var u User
	if err := DB.First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// GetFirstUser returns the oldest account. Used when auth is disabled.
func GetFirstUser() (*User, error) {
	var u User
	if err := DB.Order("id").First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func CreateUser(user *User) error {
	return translate(DB.Create(user).Error)
}

func UpdateUserPassword(id int64, hash string) error {
	return DB.Model(&User{}).Where("id = ?", id).Update("password_hash", hash).Error
}

func UpdateUsername(id int64, username string) error {
	return translate(DB.Model(&User{}).Where("id = ?", id).Update("username", username).Error)
}

func UpdateDisplayName(id int64, name string) error {
	return DB.Model(&User{}).Where("id = ?", id).Update("display_name", name).Error
}

func UserCount() (int64, error) {
	var count int64
	err := DB.Model(&User{}).Count(&count).Error
	return count, err
}
