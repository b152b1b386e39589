package database

import "time"

func ListServers() ([]Server, error) {
	var servers []Server
	if err := DB.Order("id").Find(&servers).Error; err != nil {
		return nil, err
	}
	return servers, nil
}

func ListAutoStartServers() ([]Server, error) {
	var servers []Server
	if err := DB.Where("auto_start = ?", true).Order("id").Find(&servers).Error; err != nil {
		return nil, err
	}
	return servers, nil
}

func GetServer(id int64) (*Server, error) {
	var s Server
	if err := DB.First(&s, id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func GetServerByName(name string) (*Server, error) {
	var s Server
	if err := DB.Where("name = ?", name).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func CreateServer(s *Server) error {
	return translate(DB.Create(s).Error)
}

// SaveServer writes every column of s.
func SaveServer(s *Server) error {
	return translate(DB.Save(s).Error)
}

func DeleteServer(id int64) error {
	res := DB.Delete(&Server{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func CountServers() (int64, error) {
	var n int64
	err := DB.Model(&Server{}).Count(&n).Error
	return n, err
}

// SetServerStatus records a status transition. Entering StatusStarting
// stamps last_started_at; any status other than StatusError clears the
// error message.
func SetServerStatus(id int64, status, errMsg string) error {
	updates := map[string]any{"status": status, "error_message": errMsg}
	if status != StatusError {
		updates["error_message"] = ""
	}
	if status == StatusStarting {
		updates["last_started_at"] = time.Now().UTC()
	}
	return DB.Model(&Server{}).Where("id = ?", id).Updates(updates).Error
}
