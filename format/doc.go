// 版权所有 2024 InteriorLens Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 format 把分类结果渲染为聊天回复文本（HTML 解析模式）。

# 概述

Format 为单个结果生成文件名、带 emoji 与描述的预测标签、置信度百分比，
以及按标签目录顺序排列、带 20 格进度条的概率分布；错误结果只展示
文件名与错误信息。FormatBatch 保持结果的数量与顺序。

本包只包含纯函数，不做任何 I/O。
*/
package format
