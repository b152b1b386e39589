package database

import "time"

func ListClients() ([]Client, error) {
	var clients []Client
	if err := DB.Order("id").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func ListAutoStartClients() ([]Client, error) {
	var clients []Client
	if err := DB.Where("auto_start = ?", true).Order("id").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func GetClient(id int64) (*Client, error) {
	var c Client
	if err := DB.First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func GetClientByName(name string) (*Client, error) {
	var c Client
	if err := DB.Where("name = ?", name).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func CreateClient(c *Client) error {
	return translate(DB.Create(c).Error)
}

// SaveClient writes every column of c.
func SaveClient(c *Client) error {
	return translate(DB.Save(c).Error)
}

func DeleteClient(id int64) error {
	res := DB.Delete(&Client{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func CountClients() (int64, error) {
	var n int64
	err := DB.Model(&Client{}).Count(&n).Error
	return n, err
}

// SetClientStatus records a status transition. StatusConnected stores the
// assigned port and stamps last_connected_at; every other status clears
// the assigned port.
func SetClientStatus(id int64, status, errMsg string, assignedPort int) error {
	updates := map[string]any{"status": status, "error_message": errMsg, "assigned_port": nil}
	if status != StatusError {
		updates["error_message"] = ""
	}
	if status == StatusConnected {
		updates["assigned_port"] = assignedPort
		updates["last_connected_at"] = time.Now().UTC()
	}
	return DB.Model(&Client{}).Where("id = ?", id).Updates(updates).Error
}
